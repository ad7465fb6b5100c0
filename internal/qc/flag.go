package qc

import (
	"encoding/json"
	"fmt"
)

// Flag is the per-sample outcome of a quality control check.
type Flag uint8

const (
	FlagPass Flag = iota
	FlagFail
	FlagWarn
	FlagInconclusive
	FlagInvalid
	FlagDataMissing
	FlagIsolated
)

var flagNames = map[Flag]string{
	FlagPass:         "PASS",
	FlagFail:         "FAIL",
	FlagWarn:         "WARN",
	FlagInconclusive: "INCONCLUSIVE",
	FlagInvalid:      "INVALID",
	FlagDataMissing:  "DATA_MISSING",
	FlagIsolated:     "ISOLATED",
}

var flagValues = func() map[string]Flag {
	m := make(map[string]Flag, len(flagNames))
	for f, name := range flagNames {
		m[name] = f
	}
	return m
}()

func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FLAG(%d)", uint8(f))
}

func ParseFlag(s string) (Flag, error) {
	f, ok := flagValues[s]
	if !ok {
		return 0, fmt.Errorf("unknown flag %q", s)
	}
	return f, nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	name, ok := flagNames[f]
	if !ok {
		return nil, fmt.Errorf("unknown flag %d", uint8(f))
	}
	return json.Marshal(name)
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFlag(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
