/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rawSlot struct {
	Start  string `json:"start" yaml:"start"`
	End    string `json:"end" yaml:"end"`
	Source string `json:"source" yaml:"source"`
	Key    string `json:"key" yaml:"key"`
}

// ParseJSON parses the schedule from its JSON form, e.g.
// [{"start":"08:00","end":"18:00","source":"local","key":"/music"}].
func ParseJSON(data string) ([]Slot, error) {
	var raw []rawSlot
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("parse schedule JSON: %w", err)
	}
	return convert(raw)
}

// LoadYAMLFile parses a schedule from a YAML file holding a list of slots.
func LoadYAMLFile(path string) ([]Slot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}

	var raw []rawSlot
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse schedule file %s: %w", path, err)
	}
	return convert(raw)
}

func convert(raw []rawSlot) ([]Slot, error) {
	slots := make([]Slot, 0, len(raw))
	for i, r := range raw {
		start, err := ParseTimeOfDay(r.Start)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		end, err := ParseTimeOfDay(r.End)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}

		kind := SourceKind(r.Source)
		if kind != SourceLocal && kind != SourceTelegram {
			return nil, fmt.Errorf("slot %d: unknown source %q", i, r.Source)
		}

		slots = append(slots, Slot{Start: start, End: end, Source: kind, Key: r.Key})
	}
	return slots, nil
}
