// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/capd/internal/capture"
	"github.com/ManuGH/capd/internal/fsutil"
	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/target"
)

// HeaderCaptureFile carries the base name of a streamed capture file.
const HeaderCaptureFile = "X-Capture-File"

const maxRequestBody = 4 << 10

// CaptureRequest selects the capturer of start and stop_and_get.
type CaptureRequest struct {
	Capturer string `json:"capturer"`
}

// GET /api/v1/targets/{target}/capture/list
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	t, reg, err := s.lookup(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	states, err := reg.List(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"components": states})
}

// GET /api/v1/targets/{target}/capture/inventory
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	_, reg, err := s.lookup(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capturers": reg.Inventory()})
}

// PUT|POST /api/v1/targets/{target}/capture/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	op, ok := s.prepare(w, r)
	if !ok {
		return
	}
	if err := op.reg.Start(r.Context(), op.t, op.name, op.who, op.userPath); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// PUT|POST /api/v1/targets/{target}/capture/stop_and_get
func (s *Server) handleStopAndGet(w http.ResponseWriter, r *http.Request) {
	op, ok := s.prepare(w, r)
	if !ok {
		return
	}
	res, err := op.reg.StopAndGet(r.Context(), op.t, op.name, op.who, op.userPath)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.StreamFile == "" {
		writeJSON(w, http.StatusOK, res.Map())
		return
	}

	impl, err := op.reg.Resolve(op.name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	serveCaptureFile(w, r, op.userPath, res.StreamFile, impl.Spec().PrimaryMediaType())
}

// serveCaptureFile streams a finished capture. Only files inside the
// caller's user directory are served.
func serveCaptureFile(w http.ResponseWriter, r *http.Request, root, path, mediaType string) {
	resolved, err := fsutil.ConfineAbsPath(root, path)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: output %s: %w", capture.ErrCaptureFailed, filepath.Base(path), err))
		return
	}
	if err := fsutil.IsRegularFile(resolved); err != nil {
		writeError(w, r, fmt.Errorf("%w: output %s: %w", capture.ErrCaptureFailed, filepath.Base(path), err))
		return
	}
	f, err := os.Open(resolved)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: open output: %w", capture.ErrCaptureFailed, err))
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: stat output: %w", capture.ErrCaptureFailed, err))
		return
	}

	base := filepath.Base(path)
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set(HeaderCaptureFile, base)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": base}))
	http.ServeContent(w, r, base, st.ModTime(), f)
}

type captureOp struct {
	t        *target.Target
	reg      *capture.Registry
	name     string
	who      string
	userPath string
}

// prepare resolves target, capturer name, caller and user path shared by
// start and stop_and_get. It writes the error response itself.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (captureOp, bool) {
	t, reg, err := s.lookup(chi.URLParam(r, "target"))
	if err != nil {
		writeError(w, r, err)
		return captureOp{}, false
	}
	name, err := capturerName(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return captureOp{}, false
	}
	who := log.WhoFromContext(r.Context())
	userPath, err := s.userPath(who)
	if err != nil {
		writeError(w, r, fmt.Errorf("prepare user path: %w", err))
		return captureOp{}, false
	}
	return captureOp{t: t, reg: reg, name: name, who: who, userPath: userPath}, true
}

// capturerName reads {"capturer": name} from the body, falling back to the
// capturer query parameter.
func capturerName(r *http.Request) (string, error) {
	var req CaptureRequest
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("invalid request body: %w", err)
		}
	}
	if req.Capturer == "" {
		req.Capturer = r.URL.Query().Get("capturer")
	}
	if req.Capturer == "" {
		return "", errors.New("capturer is required")
	}
	return req.Capturer, nil
}
