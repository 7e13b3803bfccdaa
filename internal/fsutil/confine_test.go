// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfineAbsPath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	inside := filepath.Join(root, "alice", "cap.mp4")
	require.NoError(t, os.MkdirAll(filepath.Dir(inside), 0o750))
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0o600))
	secret := filepath.Join(outside, "secret")
	require.NoError(t, os.WriteFile(secret, []byte("x"), 0o600))

	got, err := ConfineAbsPath(root, inside)
	require.NoError(t, err)
	assert.Equal(t, "cap.mp4", filepath.Base(got))
	assert.NoError(t, IsRegularFile(got))

	_, err = ConfineAbsPath(root, secret)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = ConfineAbsPath(root, filepath.Join(root, "alice", "..", "..", filepath.Base(outside), "secret"))
	assert.ErrorIs(t, err, ErrOutsideRoot)

	link := filepath.Join(root, "alice", "link")
	require.NoError(t, os.Symlink(secret, link))
	_, err = ConfineAbsPath(root, link)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = ConfineAbsPath(root, "relative/path")
	assert.Error(t, err)

	assert.Error(t, IsRegularFile(root))
}
