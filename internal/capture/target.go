// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"time"
)

// Properties is a target scoped key-value store. It is the only state shared
// between Start and StopAndGet and must not be cached by callers.
type Properties interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) (map[string]string, error)
}

// Target is the piece of hardware captures are taken from.
type Target interface {
	ID() string
	Type() string
	Tags() map[string]string
	StateDir() string
	Properties() Properties
	// Lock grants who exclusive access; it fails with ErrNotOwned when who
	// does not own the target and ErrLocked when the lock cannot be taken.
	Lock(ctx context.Context, who string) (release func(), err error)
}

// StartedKey is the property flagging a running stream.
func StartedKey(name string) string { return "capturer-" + name + "-started" }

// OutputKey is the property holding a stream's output path.
func OutputKey(name string) string { return "capturer-" + name + "-output" }

// PidFile is where the pid of a stream's process is recorded.
func PidFile(t Target, name string) string {
	return filepath.Join(t.StateDir(), "capturer-"+name+".pid")
}

// LogFile collects stdout and stderr of a stream's process.
func LogFile(t Target, name string) string {
	return filepath.Join(t.StateDir(), "capturer-"+name+".log")
}

// OutputPath names an artifact: <user_path>/<id>-<capturer>-<UTC stamp><ext>.
func OutputPath(userPath, targetID, name string, now time.Time, ext string) string {
	return filepath.Join(userPath, fmt.Sprintf("%s-%s-%s%s", targetID, name, now.UTC().Format("20060102-150405"), ext))
}

// Keywords assembles the substitution set for a command: target tags, then
// properties, then the guaranteed keys, later sources winning.
func Keywords(ctx context.Context, t Target, outputFile string) (map[string]string, error) {
	props, err := t.Properties().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read properties of %s: %w", t.ID(), err)
	}
	kws := make(map[string]string, len(props)+len(t.Tags())+3)
	maps.Copy(kws, t.Tags())
	maps.Copy(kws, props)
	kws[KeyOutputFileName] = outputFile
	kws[KeyID] = t.ID()
	kws[KeyType] = t.Type()
	return kws, nil
}

// staticKeywords is what is known about a target at configuration time.
func staticKeywords(id, typ string, tags map[string]string) map[string]string {
	kws := maps.Clone(tags)
	if kws == nil {
		kws = map[string]string{}
	}
	kws[KeyOutputFileName] = ""
	kws[KeyID] = id
	kws[KeyType] = typ
	return kws
}
