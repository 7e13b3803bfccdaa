// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPidFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capturer-hdmi0.pid")

	require.NoError(t, WritePidFile(path, 1234))
	pid, err := ReadPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, pid)

	// Overwrite replaces the record.
	require.NoError(t, WritePidFile(path, 99))
	pid, err = ReadPidFile(path)
	require.NoError(t, err)
	assert.Equal(t, 99, pid)

	require.NoError(t, RemovePidFile(path))
	require.NoError(t, RemovePidFile(path), "removing twice is fine")
	_, err = ReadPidFile(path)
	assert.ErrorIs(t, err, ErrNoPidFile)
}

func TestReadPidFileMalformed(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"garbage":  "not-a-pid",
		"zero":     "0",
		"negative": "-12",
		"empty":    "",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".pid")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := ReadPidFile(path)
			assert.ErrorIs(t, err, ErrBadPidFile)
		})
	}
}

func TestWritePidFileRejectsInvalidPid(t *testing.T) {
	err := WritePidFile(filepath.Join(t.TempDir(), "x.pid"), 0)
	assert.ErrorIs(t, err, ErrBadPidFile)
}
