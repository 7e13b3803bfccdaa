// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"fmt"
	"slices"
	"strings"
)

// Keywords every capture command can rely on.
const (
	KeyOutputFileName = "output_file_name"
	KeyID             = "id"
	KeyType           = "type"
)

// GuaranteedKeys are always present when a command is expanded.
var GuaranteedKeys = []string{KeyOutputFileName, KeyID, KeyType}

// expand walks tmpl calling fn for every ${key} placeholder. "$$" is a
// literal "$"; any other "$" is copied through so shell variables in
// pre-commands survive. Unterminated "${" is an error.
func expand(tmpl string, fn func(key string) (string, bool)) (string, []string, error) {
	var (
		b       strings.Builder
		missing []string
	)
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' || i+1 >= len(tmpl) {
			b.WriteByte(c)
			continue
		}
		switch tmpl[i+1] {
		case '$':
			b.WriteByte('$')
			i++
		case '{':
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end < 0 {
				return "", nil, fmt.Errorf("%w: unterminated placeholder in %q", ErrInvalidConfig, tmpl)
			}
			key := tmpl[i+2 : i+2+end]
			if key == "" {
				return "", nil, fmt.Errorf("%w: empty placeholder in %q", ErrInvalidConfig, tmpl)
			}
			if v, ok := fn(key); ok {
				b.WriteString(v)
			} else if !slices.Contains(missing, key) {
				missing = append(missing, key)
			}
			i += 2 + end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), missing, nil
}

// TemplateKeys lists the placeholders used in tmpl, in order of appearance.
func TemplateKeys(tmpl string) ([]string, error) {
	_, keys, err := expand(tmpl, func(string) (string, bool) { return "", false })
	return keys, err
}

// CheckTemplate fails when tmpl references keys outside known.
func CheckTemplate(tmpl string, known map[string]string) error {
	_, missing, err := expand(tmpl, func(k string) (string, bool) {
		v, ok := known[k]
		return v, ok
	})
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %q references unknown keywords %s", ErrInvalidConfig, tmpl, strings.Join(missing, ", "))
	}
	return nil
}

// ExpandTemplate substitutes keywords into tmpl. Unresolved keys are an error.
func ExpandTemplate(tmpl string, kws map[string]string) (string, error) {
	out, missing, err := expand(tmpl, func(k string) (string, bool) {
		v, ok := kws[k]
		return v, ok
	})
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("unresolved keywords %s in %q", strings.Join(missing, ", "), tmpl)
	}
	return out, nil
}

// expandArgv splits command on whitespace and then expands each field, so a
// substituted value always stays a single argument.
func expandArgv(command string, kws map[string]string) ([]string, error) {
	fields := strings.Fields(command)
	argv := make([]string, 0, len(fields))
	for _, f := range fields {
		arg, err := ExpandTemplate(f, kws)
		if err != nil {
			return nil, err
		}
		argv = append(argv, arg)
	}
	return argv, nil
}
