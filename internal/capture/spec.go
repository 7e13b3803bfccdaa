// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Mode tells snapshot capturers from stream capturers.
type Mode string

const (
	ModeSnapshot Mode = "snapshot"
	ModeStream   Mode = "stream"
)

// ParseMode accepts "snapshot" or "stream".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSnapshot:
		return ModeSnapshot, nil
	case ModeStream:
		return ModeStream, nil
	default:
		return "", fmt.Errorf("%w: mode %q (want snapshot or stream)", ErrInvalidConfig, s)
	}
}

var (
	mediaTypeRe = regexp.MustCompile(`^[A-Za-z0-9_]+/[A-Za-z0-9_]+(,[A-Za-z0-9_]+/[A-Za-z0-9_]+)*$`)
	nameRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ValidateMediaType checks a comma separated list of type/subtype tokens.
func ValidateMediaType(mt string) error {
	if !mediaTypeRe.MatchString(mt) {
		return fmt.Errorf("%w: media type %q", ErrInvalidConfig, mt)
	}
	return nil
}

// ValidateName checks a capturer name.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: capturer name %q", ErrInvalidConfig, name)
	}
	return nil
}

// Spec describes a capture channel. It is immutable once built.
type Spec struct {
	Mode      Mode
	MediaType string
	// Identity fingerprints the command line so equivalent capturers can be
	// recognised; it is not a secret.
	Identity string
}

func newSpec(mode Mode, mediaType, command string) (Spec, error) {
	if err := ValidateMediaType(mediaType); err != nil {
		return Spec{}, err
	}
	return Spec{Mode: mode, MediaType: mediaType, Identity: Fingerprint(command)}, nil
}

// PrimaryMediaType is the first token of MediaType, used as Content-Type.
func (s Spec) PrimaryMediaType() string {
	mt, _, _ := strings.Cut(s.MediaType, ",")
	return mt
}

// Fingerprint derives a stable identity from a command line.
func Fingerprint(command string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(command), " ")))
	return hex.EncodeToString(sum[:10])
}
