// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import "encoding/json"

// StreamFileKey is the result key telling the transport to send a file.
const StreamFileKey = "stream_file"

// Result is what StopAndGet hands back. A non-empty StreamFile supersedes
// Data.
type Result struct {
	StreamFile string
	Data       map[string]any
}

// Map renders the result as the wire mapping.
func (r Result) Map() map[string]any {
	if r.StreamFile != "" {
		return map[string]any{StreamFileKey: r.StreamFile}
	}
	if r.Data == nil {
		return map[string]any{}
	}
	return r.Data
}

// State is a capturer's entry in List.
type State int

const (
	StateNotApplicable State = iota // snapshot capturers
	StateStopped
	StateStarted
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return "n/a"
	}
}

// MarshalJSON encodes started/stopped as true/false and n/a as null.
func (s State) MarshalJSON() ([]byte, error) {
	switch s {
	case StateStarted:
		return []byte("true"), nil
	case StateStopped:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (s *State) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch {
	case v == nil:
		*s = StateNotApplicable
	case *v:
		*s = StateStarted
	default:
		*s = StateStopped
	}
	return nil
}
