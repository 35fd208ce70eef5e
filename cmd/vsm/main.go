// Command vsm is the toolchain front end: it compiles the high-level
// language to a machine image, runs or disassembles an image, and launches
// the interactive debugger, mirroring the split between the original's
// translator.py (compiler) and machine.py (VM) front ends.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vsm/debug"
	"vsm/lang"
	"vsm/vm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vsm",
		Short: "Toolchain for the stack-and-vector educational ISA",
	}

	rootCmd.AddCommand(
		newCompileCmd(),
		newRunCmd(),
		newDisasmCmd(),
		newDebugCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newCompileCmd() *cobra.Command {
	var (
		out       string
		emitDebug bool
		emitAST   bool
	)

	cmd := &cobra.Command{
		Use:   "compile <source>",
		Short: "Compile a source file to a machine image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcPath := args[0]
			src, err := os.ReadFile(srcPath)
			if err != nil {
				return fmt.Errorf("reading source: %w", err)
			}

			tokens, err := lang.NewLexer(string(src)).Tokenize()
			if err != nil {
				return fmt.Errorf("lex error: %w", err)
			}
			prog, err := lang.Parse(tokens)
			if err != nil {
				return fmt.Errorf("parse error: %w", err)
			}

			if emitAST {
				fmt.Println(lang.DumpAST(prog))
			}

			img, err := lang.Generate(prog)
			if err != nil {
				return fmt.Errorf("codegen error: %w", err)
			}

			base := out
			if base == "" {
				base = strings.TrimSuffix(srcPath, filepathExt(srcPath))
			}

			if err := img.SaveInstructions(base + ".img"); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}
			if err := img.SaveData(base + ".dat"); err != nil {
				return fmt.Errorf("writing data segment: %w", err)
			}
			fmt.Printf("wrote %s.img (%d words), %s.dat (%d bytes)\n",
				base, len(img.Instructions), base, len(img.Data))

			if emitDebug {
				f, err := os.Create(base + ".lst")
				if err != nil {
					return fmt.Errorf("writing debug listing: %w", err)
				}
				defer f.Close()
				if err := img.DebugListing(f); err != nil {
					return fmt.Errorf("debug listing: %w", err)
				}
				fmt.Printf("wrote %s.lst\n", base)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output base path (defaults to the source path minus its extension)")
	cmd.Flags().BoolVar(&emitDebug, "debug", false, "also emit a <base>.lst debug listing")
	cmd.Flags().BoolVar(&emitAST, "ast", false, "print the parsed AST before compiling")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		dataPath     string
		schedulePath string
		maxCycles    uint64
		trace        bool
	)

	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Run a compiled machine image to completion or budget exhaustion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := loadProcessor(args[0], dataPath, schedulePath)
			if err != nil {
				return err
			}

			proc.Run(maxCycles)

			if trace {
				for _, line := range proc.Log {
					fmt.Println(line)
				}
			}

			fmt.Printf("state=%s cycles=%d instructions=%d stack=%v\n",
				proc.State, proc.CycleCount, proc.InstructionCount, proc.Stack())
			if proc.Err != nil {
				fmt.Fprintln(os.Stderr, "fault:", proc.Err)
			}
			if len(proc.IO.Output) > 0 {
				fmt.Println("--- output ---")
				os.Stdout.Write(proc.IO.Output)
				fmt.Println()
			}
			if proc.Err != nil {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "data segment file (<image base>.dat if omitted)")
	cmd.Flags().StringVar(&schedulePath, "schedule", "", "YAML scheduled-input document")
	cmd.Flags().Uint64Var(&maxCycles, "max-cycles", 0, "cycle budget; 0 means unbounded")
	cmd.Flags().BoolVar(&trace, "trace", false, "print the full execution log after running")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <image>",
		Short: "Print a human-readable listing of a machine image without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instructions, err := vm.LoadInstructions(args[0])
			if err != nil {
				return fmt.Errorf("loading image: %w", err)
			}
			img := vm.NewImage()
			img.Instructions = instructions
			return img.DebugListing(os.Stdout)
		},
	}
	return cmd
}

func newDebugCmd() *cobra.Command {
	var dataPath, schedulePath string

	cmd := &cobra.Command{
		Use:   "debug <image>",
		Short: "Launch the interactive debugger TUI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := loadProcessor(args[0], dataPath, schedulePath)
			if err != nil {
				return err
			}
			return debug.Run(proc)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "data segment file (<image base>.dat if omitted)")
	cmd.Flags().StringVar(&schedulePath, "schedule", "", "YAML scheduled-input document")
	return cmd
}

// loadProcessor builds a *vm.Processor from an image path plus optional
// sibling data-segment and schedule files.
func loadProcessor(imagePath, dataPath, schedulePath string) (*vm.Processor, error) {
	instructions, err := vm.LoadInstructions(imagePath)
	if err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}

	if dataPath == "" {
		dataPath = strings.TrimSuffix(imagePath, filepathExt(imagePath)) + ".dat"
	}
	var data []byte
	if _, statErr := os.Stat(dataPath); statErr == nil {
		data, err = vm.LoadData(dataPath)
		if err != nil {
			return nil, fmt.Errorf("loading data segment: %w", err)
		}
	}

	var schedule []vm.ScheduledInput
	if schedulePath != "" {
		schedule, err = vm.LoadSchedule(schedulePath)
		if err != nil {
			return nil, fmt.Errorf("loading schedule: %w", err)
		}
	}

	return vm.NewProcessor(instructions, data, schedule), nil
}

func filepathExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 && strings.LastIndexByte(path, '/') < i {
		return path[i:]
	}
	return ""
}
