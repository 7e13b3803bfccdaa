// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Well-known sample field names.
const (
	FieldSequence  = "sequence"
	FieldTimestamp = "timestamp"
	FieldRaw       = "raw"
	FieldPower     = "power (watt)"
	FieldVoltage   = "voltage (volt)"
)

const (
	timestampLayout   = "20060102150405"
	timestampLayoutMs = "20060102150405.000"
)

// Sample is one entry of the common result envelope. It is encoded flat:
// sequence, timestamp and the domain fields at the top level, instrument
// specifics under "raw".
type Sample struct {
	Sequence  int64
	Timestamp string
	Fields    map[string]any
	Raw       map[string]any
}

// ParseTimestamp accepts both timestamp forms.
func ParseTimestamp(s string) (time.Time, error) {
	switch len(s) {
	case 14:
		return time.ParseInLocation(timestampLayout, s, time.UTC)
	case 17:
		return time.ParseInLocation(timestampLayoutMs, s[:14]+"."+s[14:], time.UTC)
	default:
		return time.Time{}, fmt.Errorf("timestamp %q: want 14 or 17 digits", s)
	}
}

func (s Sample) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Fields)+3)
	maps.Copy(m, s.Fields)
	m[FieldSequence] = s.Sequence
	m[FieldTimestamp] = s.Timestamp
	if len(s.Raw) > 0 {
		m[FieldRaw] = s.Raw
	}
	return json.Marshal(m)
}

func (s *Sample) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	seq, ok := m[FieldSequence].(json.Number)
	if !ok {
		return fmt.Errorf("sample: missing numeric %q", FieldSequence)
	}
	n, err := seq.Int64()
	if err != nil {
		return fmt.Errorf("sample: %q: %w", FieldSequence, err)
	}
	ts, ok := m[FieldTimestamp].(string)
	if !ok {
		return fmt.Errorf("sample: missing string %q", FieldTimestamp)
	}
	out := Sample{Sequence: n, Timestamp: ts}
	if raw, ok := m[FieldRaw]; ok {
		rm, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("sample: %q must be an object", FieldRaw)
		}
		out.Raw = rm
	}
	delete(m, FieldSequence)
	delete(m, FieldTimestamp)
	delete(m, FieldRaw)
	if len(m) > 0 {
		out.Fields = m
	}
	*s = out
	return nil
}

// ValidateSamples checks timestamps and strictly increasing sequence numbers.
func ValidateSamples(samples []Sample) error {
	for i, s := range samples {
		if _, err := ParseTimestamp(s.Timestamp); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if i > 0 && s.Sequence <= samples[i-1].Sequence {
			return fmt.Errorf("sample %d: sequence %d does not follow %d", i, s.Sequence, samples[i-1].Sequence)
		}
	}
	return nil
}

// ParseSamples decodes either a bare JSON array of samples or an object with
// a "samples" array, and validates the result.
func ParseSamples(data []byte) ([]Sample, error) {
	data = bytes.TrimSpace(data)
	var samples []Sample
	if len(data) > 0 && data[0] == '{' {
		var env struct {
			Samples []Sample `json:"samples"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		samples = env.Samples
	} else if err := json.Unmarshal(data, &samples); err != nil {
		return nil, err
	}
	if err := ValidateSamples(samples); err != nil {
		return nil, err
	}
	return samples, nil
}
