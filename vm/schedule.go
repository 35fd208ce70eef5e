package vm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// scheduleDoc mirrors the YAML shape described in spec §6:
//
//	input:
//	  - cycle: 10
//	    data: 65     # integer byte value
//	  - cycle: 25
//	    data: "A"    # single-character string, converted to its byte value
type scheduleDoc struct {
	Input []scheduleEntry `yaml:"input"`
}

type scheduleEntry struct {
	Cycle int `yaml:"cycle"`
	Data  any `yaml:"data"`
}

// LoadSchedule parses an input-schedule YAML document into the
// []ScheduledInput form IOController consumes.
func LoadSchedule(path string) ([]ScheduledInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc scheduleDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing schedule %s: %w", path, err)
	}
	out := make([]ScheduledInput, 0, len(doc.Input))
	for i, e := range doc.Input {
		b, err := entryByte(e.Data)
		if err != nil {
			return nil, fmt.Errorf("schedule %s entry %d: %w", path, i, err)
		}
		out = append(out, ScheduledInput{Cycle: e.Cycle, Data: b})
	}
	return out, nil
}

func entryByte(v any) (byte, error) {
	switch x := v.(type) {
	case int:
		return byte(x), nil
	case int64:
		return byte(x), nil
	case string:
		if len(x) != 1 {
			return 0, fmt.Errorf("string data %q must be exactly one character", x)
		}
		return x[0], nil
	default:
		return 0, fmt.Errorf("unsupported data value %v (%T)", v, v)
	}
}
