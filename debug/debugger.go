// Package debug implements the interactive debugger TUI: a bubbletea
// model wrapping a *vm.Processor, grounded on hejops-gone's
// tick-at-a-time debugger (cpu/debugger.go) but reworked around this
// processor's cycle-accurate Step and its vector register file.
package debug

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/davecgh/go-spew/spew"

	"vsm/vm"
)

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableMethods:          true,
}

const logTail = 12

type model struct {
	proc *vm.Processor

	breakpoints map[uint32]bool
	running     bool // free-run until breakpoint or halt
	pendingAddr string
	enteringBP  bool
	err         error
}

// Run launches the debugger over proc and blocks until the user quits.
func Run(proc *vm.Processor) error {
	_, err := tea.NewProgram(newModel(proc)).Run()
	return err
}

func newModel(proc *vm.Processor) model {
	return model{proc: proc, breakpoints: make(map[uint32]bool)}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	s := keyMsg.String()

	if m.enteringBP {
		switch s {
		case "enter":
			if addr, err := strconv.ParseUint(m.pendingAddr, 0, 32); err == nil {
				a := uint32(addr)
				if m.breakpoints[a] {
					delete(m.breakpoints, a)
				} else {
					m.breakpoints[a] = true
				}
			}
			m.enteringBP = false
			m.pendingAddr = ""
		case "esc":
			m.enteringBP = false
			m.pendingAddr = ""
		case "backspace":
			if len(m.pendingAddr) > 0 {
				m.pendingAddr = m.pendingAddr[:len(m.pendingAddr)-1]
			}
		default:
			m.pendingAddr += s
		}
		return m, nil
	}

	switch s {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "n", " ":
		m.stepOneInstruction()

	case "r":
		m.runToBreakpoint()

	case "b":
		m.enteringBP = true

	default:
	}
	return m, nil
}

// stepOneInstruction advances the processor through exactly one full
// instruction (Step only advances a single cycle at a time).
func (m *model) stepOneInstruction() {
	if m.proc.State != vm.Running {
		return
	}
	startCount := m.proc.InstructionCount
	for m.proc.State == vm.Running && m.proc.InstructionCount == startCount {
		m.proc.Step()
	}
}

// runToBreakpoint free-runs until the processor halts or its PC lands on
// an installed breakpoint, whichever comes first.
func (m *model) runToBreakpoint() {
	for m.proc.State == vm.Running {
		m.proc.Step()
		if m.breakpoints[m.proc.PC] {
			break
		}
	}
}

func (m model) status() string {
	top := "(empty)"
	if v, ok := m.proc.StackTop(); ok {
		top = fmt.Sprintf("%d", int32(v))
	}
	return fmt.Sprintf(
		"PC:   %04X\nstate: %s\ncycles: %d\ninstructions: %d\nstack depth: %d\nstack top: %s",
		m.proc.PC, m.proc.State, m.proc.CycleCount, m.proc.InstructionCount, len(m.proc.Stack()), top,
	)
}

func (m model) breakpointList() string {
	if len(m.breakpoints) == 0 {
		return "breakpoints: none"
	}
	var addrs []string
	for addr := range m.breakpoints {
		addrs = append(addrs, fmt.Sprintf("%04X", addr))
	}
	return "breakpoints: " + strings.Join(addrs, ", ")
}

func (m model) program() string {
	var b strings.Builder
	lo, hi := 0, len(m.proc.Program)
	if int(m.proc.PC) > 5 {
		lo = int(m.proc.PC) - 5
	}
	if lo+15 < hi {
		hi = lo + 15
	}
	for i := lo; i < hi; i++ {
		marker := "   "
		if uint32(i) == m.proc.PC {
			marker = ">> "
		}
		if m.breakpoints[uint32(i)] {
			marker = marker[:1] + "*" + marker[2:]
		}
		fmt.Fprintf(&b, "%s%04X  %s\n", marker, i, m.proc.Program[i])
	}
	return b.String()
}

func (m model) vectorDump() string {
	return dumpConfig.Sdump(m.proc.Vector)
}

func (m model) logView() string {
	n := len(m.proc.Log)
	start := 0
	if n > logTail {
		start = n - logTail
	}
	return strings.Join(m.proc.Log[start:], "\n")
}

func (m model) View() string {
	header := lipgloss.NewStyle().Bold(true).Render("vsm debugger — n: step  r: run-to-breakpoint  b <addr>: toggle breakpoint  q: quit")

	left := lipgloss.JoinVertical(lipgloss.Left, m.status(), "", m.breakpointList(), "", m.program())
	right := lipgloss.JoinVertical(lipgloss.Left, "vector registers:", m.vectorDump())

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, "    ", right)

	footer := m.logView()
	if m.enteringBP {
		footer = "breakpoint addr (hex or decimal): " + m.pendingAddr + "_\n" + footer
	}
	if m.err != nil {
		footer = "error: " + m.err.Error() + "\n" + footer
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", footer)
}
