// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/capd/internal/log"
)

// HeaderUser names the caller when no tokens are configured.
const HeaderUser = "X-Capture-User"

var errBadUser = errors.New("invalid user name")

// identify resolves the caller and stores it in the request context.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.WithComponentFromContext(r.Context(), "auth")

		var who string
		if len(s.cfg.Tokens) > 0 {
			token := bearerToken(r)
			if token == "" {
				logger.Warn().Str(log.FieldEvent, "auth.missing_header").Msg("authorization header missing")
				writeProblem(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			user, ok := s.lookupToken(token)
			if !ok {
				logger.Warn().Str(log.FieldEvent, "auth.invalid_token").Msg("invalid api token")
				writeProblem(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			who = user
		} else {
			who = r.Header.Get(HeaderUser)
			if who == "" {
				writeProblem(w, r, http.StatusUnauthorized, "unauthorized", HeaderUser+" header required")
				return
			}
		}

		who, err := sanitizeUser(who)
		if err != nil {
			writeProblem(w, r, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(log.ContextWithWho(r.Context(), who)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// lookupToken compares against every configured token in constant time.
func (s *Server) lookupToken(token string) (string, bool) {
	var user string
	found := false
	for candidate, name := range s.cfg.Tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			user = name
			found = true
		}
	}
	return user, found
}

// sanitizeUser normalises a user name to NFC and rejects anything that
// would escape the users directory.
func sanitizeUser(who string) (string, error) {
	who = norm.NFC.String(strings.TrimSpace(who))
	switch {
	case who == "", who == ".", who == "..":
		return "", errBadUser
	case len(who) > 128:
		return "", errBadUser
	case strings.ContainsAny(who, "/\\\x00"):
		return "", errBadUser
	}
	for _, r := range who {
		if r < 0x20 || r == 0x7f {
			return "", errBadUser
		}
	}
	return who, nil
}

// userPath returns, creating it if needed, the caller's output directory.
func (s *Server) userPath(who string) (string, error) {
	dir := filepath.Join(s.cfg.DataDir, "users", who)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}
