// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/capd/internal/version"
)

const configYAML = `
data_dir: %s
listen_addr: "127.0.0.1:0"
store:
  backend: memory
targets:
  - id: qu05a
    type: qemu-uefi
    tags:
      vnc_port: "5901"
    capturers:
      vnc0:
        mode: snapshot
        command: "gvnccapture -q localhost:${vnc_port} ${output_file_name}"
        mimetype: image/png
      screen:
        alias: vnc0
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "capd.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), version.Version)
}

func TestRunUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--no-such-flag"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}

func TestRunCheckValidConfig(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(configYAML, t.TempDir()))
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--config", path, "--check"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "target qu05a: screen, vnc0")
}

func TestRunCheckRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(configYAML, t.TempDir())+"bogus: true\n")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-c", path, "--check"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "config.load_failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(configYAML, t.TempDir()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"--config", path}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}
