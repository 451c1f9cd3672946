package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Entry maps one logical input signal to one output action.
type Entry struct {
	ID       string
	SignalID string
	Action   Action
	Priority int
	Deadband float64
	// Invert negates the value before arbitration. HOTAS sticks report Y
	// with the opposite sign to a gamepad.
	Invert bool
}

// entryDoc is the persisted shape of an Entry.
type entryDoc struct {
	ID       string  `yaml:"id" json:"id"`
	SignalID string  `yaml:"signal_id" json:"signal_id"`
	Action   string  `yaml:"action" json:"action"`
	Priority int     `yaml:"priority" json:"priority"`
	Deadband float64 `yaml:"deadband" json:"deadband"`
	Invert   bool    `yaml:"invert,omitempty" json:"invert,omitempty"`
}

func (e Entry) doc() entryDoc {
	d := entryDoc{
		ID:       e.ID,
		SignalID: e.SignalID,
		Priority: e.Priority,
		Deadband: e.Deadband,
		Invert:   e.Invert,
	}
	if e.Action != nil {
		d.Action = e.Action.String()
	}
	return d
}

func (d entryDoc) entry() (Entry, error) {
	act, err := ParseAction(d.Action)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:       d.ID,
		SignalID: d.SignalID,
		Action:   act,
		Priority: d.Priority,
		Deadband: d.Deadband,
		Invert:   d.Invert,
	}, nil
}

// Validate checks a single entry. It does not check id uniqueness.
func (e Entry) Validate() error {
	if e.SignalID == "" {
		return errors.New("signal_id must not be empty")
	}
	if e.Action == nil {
		return errors.New("action must not be empty")
	}
	if math.IsNaN(e.Deadband) || e.Deadband < 0 || e.Deadband > 1 {
		return fmt.Errorf("deadband %v must be between 0 and 1", e.Deadband)
	}
	return nil
}

func (e Entry) MarshalYAML() (interface{}, error) { return e.doc(), nil }

// entryKeys are the keys a persisted entry may carry. Older profiles
// wrote a per-entry "param" that is no longer used and is ignored.
var entryKeys = map[string]bool{
	"id": true, "signal_id": true, "action": true, "priority": true,
	"deadband": true, "invert": true, "param": true,
}

func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			k := value.Content[i]
			if !entryKeys[k.Value] {
				return fmt.Errorf("line %d: unknown mapping field %q", k.Line, k.Value)
			}
		}
	}
	var d entryDoc
	if err := value.Decode(&d); err != nil {
		return err
	}
	v, err := d.entry()
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) { return json.Marshal(e.doc()) }

func (e *Entry) UnmarshalJSON(b []byte) error {
	var d entryDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	v, err := d.entry()
	if err != nil {
		return err
	}
	*e = v
	return nil
}
