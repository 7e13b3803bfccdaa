// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/capd/internal/log"
	"github.com/ManuGH/capd/internal/metrics"
	"github.com/ManuGH/capd/internal/telemetry"
)

// Entry is one registry declaration: an implementation, or an alias naming
// another entry that has one.
type Entry struct {
	Impl  Capturer
	Alias string
}

// Descriptor publishes what a capturer is, for inventory listings.
type Descriptor struct {
	Name      string `json:"name"`
	Mode      Mode   `json:"type"`
	MediaType string `json:"mimetype"`
	Identity  string `json:"identity"`
	AliasOf   string `json:"alias_of,omitempty"`
}

// Registry dispatches capture operations by name. It holds no mutable state:
// serialisation comes from Target.Lock and session state from the target's
// properties.
type Registry struct {
	names   []string
	impls   map[string]Capturer
	aliasOf map[string]string
}

// NewRegistry validates entries and resolves aliases. An alias must point at
// an entry with an implementation; aliases of aliases are rejected.
func NewRegistry(entries map[string]Entry) (*Registry, error) {
	r := &Registry{
		impls:   make(map[string]Capturer, len(entries)),
		aliasOf: make(map[string]string),
	}
	for name, e := range entries {
		if err := ValidateName(name); err != nil {
			return nil, err
		}
		switch {
		case e.Impl != nil && e.Alias != "":
			return nil, fmt.Errorf("%w: capturer %q is both an implementation and an alias", ErrInvalidConfig, name)
		case e.Impl != nil:
			r.impls[name] = e.Impl
		case e.Alias != "":
			ref, ok := entries[e.Alias]
			if !ok {
				return nil, fmt.Errorf("%w: alias %q refers to unknown capturer %q", ErrInvalidConfig, name, e.Alias)
			}
			if ref.Impl == nil {
				return nil, fmt.Errorf("%w: alias %q refers to alias %q; chained aliases are not supported", ErrInvalidConfig, name, e.Alias)
			}
			r.impls[name] = ref.Impl
			r.aliasOf[name] = e.Alias
		default:
			return nil, fmt.Errorf("%w: capturer %q has neither implementation nor alias", ErrInvalidConfig, name)
		}
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Resolve returns the implementation registered under name.
func (r *Registry) Resolve(name string) (Capturer, error) {
	impl, ok := r.impls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapturer, name)
	}
	return impl, nil
}

// CheckKeywords verifies at configuration time that every template only uses
// the guaranteed keywords and the target's tags.
func (r *Registry) CheckKeywords(id, typ string, tags map[string]string) error {
	known := staticKeywords(id, typ, tags)
	for _, name := range r.names {
		if _, alias := r.aliasOf[name]; alias {
			continue
		}
		for _, tmpl := range r.impls[name].Templates() {
			if err := CheckTemplate(tmpl, known); err != nil {
				return fmt.Errorf("target %s capturer %s: %w", id, name, err)
			}
		}
	}
	return nil
}

// Start begins a stream capture. A capture already marked started is stopped
// first, its output discarded, so the caller always gets a fresh session.
func (r *Registry) Start(ctx context.Context, t Target, name, who, userPath string) (err error) {
	impl, err := r.Resolve(name)
	if err != nil {
		return err
	}
	ctx, finish := r.begin(ctx, "capture.start", t, name, impl.Spec().Mode, who)
	defer func() { finish(err) }()

	release, err := t.Lock(ctx, who)
	if err != nil {
		return err
	}
	defer release()

	if impl.Spec().Mode != ModeStream {
		return fmt.Errorf("%w: %s: starting is not valid for snapshot capturers", ErrInvalidOperation, name)
	}

	props := t.Properties()
	key := StartedKey(name)
	_, started, err := props.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%s: read started flag: %w", name, err)
	}

	if started {
		metrics.IncForcedRestart()
		if err := props.Delete(ctx, key); err != nil {
			return fmt.Errorf("%s: clear started flag: %w", name, err)
		}
		if _, stopErr := impl.StopAndGet(ctx, t, name, userPath); stopErr != nil {
			logger := log.WithComponentFromContext(ctx, "capture")
			logger.Warn().Err(stopErr).Str(log.FieldTarget, t.ID()).Str(log.FieldCapturer, name).
				Msg("stopping previous session before restart failed")
		}
	}

	if err := props.Set(ctx, key, strconv.FormatBool(true)); err != nil {
		return fmt.Errorf("%s: set started flag: %w", name, err)
	}
	if err := impl.Start(ctx, t, name, userPath); err != nil {
		if delErr := props.Delete(ctx, key); delErr != nil {
			return errors.Join(err, delErr)
		}
		return err
	}
	return nil
}

// StopAndGet takes a snapshot, or stops a started stream and returns its
// output. The started flag is cleared before the stream is stopped, so a
// failed stop still leaves the capturer re-startable.
func (r *Registry) StopAndGet(ctx context.Context, t Target, name, who, userPath string) (res Result, err error) {
	impl, err := r.Resolve(name)
	if err != nil {
		return Result{}, err
	}
	ctx, finish := r.begin(ctx, "capture.stop_and_get", t, name, impl.Spec().Mode, who)
	defer func() { finish(err) }()

	release, err := t.Lock(ctx, who)
	if err != nil {
		return Result{}, err
	}
	defer release()

	if impl.Spec().Mode == ModeSnapshot {
		return impl.StopAndGet(ctx, t, name, userPath)
	}

	props := t.Properties()
	key := StartedKey(name)
	_, started, err := props.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("%s: read started flag: %w", name, err)
	}
	if !started {
		return Result{}, fmt.Errorf("%w: %s", ErrNotCapturing, name)
	}
	if err := props.Delete(ctx, key); err != nil {
		return Result{}, fmt.Errorf("%s: clear started flag: %w", name, err)
	}
	return impl.StopAndGet(ctx, t, name, userPath)
}

// List reports every name's state. It takes no lock.
func (r *Registry) List(ctx context.Context, t Target) (map[string]State, error) {
	props, err := t.Properties().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("read properties of %s: %w", t.ID(), err)
	}
	out := make(map[string]State, len(r.names))
	for _, name := range r.names {
		if r.impls[name].Spec().Mode == ModeSnapshot {
			out[name] = StateNotApplicable
			continue
		}
		if _, started := props[StartedKey(name)]; started {
			out[name] = StateStarted
		} else {
			out[name] = StateStopped
		}
	}
	return out, nil
}

// ReleaseAll stops every stream still marked started. It is the target's
// release hook: errors are logged and never returned.
func (r *Registry) ReleaseAll(ctx context.Context, t Target, force bool) {
	ctx = context.WithoutCancel(ctx)
	logger := log.WithComponentFromContext(ctx, "capture").With().
		Str(log.FieldTarget, t.ID()).Bool("force", force).Logger()
	props := t.Properties()

	for _, name := range r.names {
		impl := r.impls[name]
		if impl.Spec().Mode != ModeStream {
			continue
		}
		key := StartedKey(name)
		_, started, err := props.Get(ctx, key)
		if err != nil {
			logger.Error().Err(err).Str(log.FieldCapturer, name).Msg("release: failed to read started flag")
			continue
		}
		if !started {
			continue
		}
		begin := time.Now()
		if err := props.Delete(ctx, key); err != nil {
			logger.Error().Err(err).Str(log.FieldCapturer, name).Msg("release: failed to clear started flag")
		}
		_, err = impl.StopAndGet(ctx, t, name, "")
		result := "ok"
		if err != nil {
			result = resultLabel(err)
			logger.Error().Err(err).Str(log.FieldCapturer, name).Str(log.FieldEvent, "capture.release").
				Msg("release: failed to stop stream capture")
		} else {
			logger.Info().Str(log.FieldCapturer, name).Str(log.FieldEvent, "capture.release").
				Msg("release: stopped stream capture")
		}
		metrics.ObserveCaptureOp("release", string(ModeStream), result, time.Since(begin))
	}
}

// Inventory describes every registered name, sorted by name.
func (r *Registry) Inventory() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		spec := r.impls[name].Spec()
		out = append(out, Descriptor{
			Name:      name,
			Mode:      spec.Mode,
			MediaType: spec.MediaType,
			Identity:  spec.Identity,
			AliasOf:   r.aliasOf[name],
		})
	}
	return out
}

// begin opens a span for op and returns a finisher recording the outcome in
// the span, the metrics and the log.
func (r *Registry) begin(ctx context.Context, op string, t Target, name string, mode Mode, who string) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := telemetry.Tracer("capd/capture").Start(ctx, op,
		trace.WithAttributes(telemetry.CaptureAttributes(t.ID(), name, string(mode), who)...))

	return ctx, func(err error) {
		defer span.End()
		result := resultLabel(err)
		metrics.ObserveCaptureOp(op, string(mode), result, time.Since(started))

		logger := log.WithComponentFromContext(ctx, "capture")
		var ev *zerolog.Event
		switch {
		case err == nil:
			ev = logger.Info()
		case isClientError(err):
			ev = logger.Warn().Err(err)
		default:
			ev = logger.Error().Err(err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(telemetry.ErrorAttribute(result))
		}
		ev.Str(log.FieldEvent, op).
			Str(log.FieldTarget, t.ID()).
			Str(log.FieldCapturer, name).
			Str(log.FieldMode, string(mode)).
			Str(log.FieldWho, who).
			Dur("duration", time.Since(started)).
			Msg("capture operation finished")
	}
}

func isClientError(err error) bool {
	return errors.Is(err, ErrUnknownCapturer) || errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrNotCapturing) || errors.Is(err, ErrNotOwned) || errors.Is(err, ErrLocked)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, ErrNotCapturing):
		return "not_capturing"
	case errors.Is(err, ErrNotOwned):
		return "not_owned"
	case errors.Is(err, ErrLocked):
		return "locked"
	case errors.Is(err, ErrLaunchFailed):
		return "launch_failed"
	case errors.Is(err, ErrCaptureFailed):
		return "capture_failed"
	default:
		return "error"
	}
}
