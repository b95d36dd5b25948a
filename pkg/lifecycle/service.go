package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/insight-auth/pkg/errors"
)

const tracerName = "github.com/StricklySoft/insight-auth/pkg/lifecycle"

// Hook runs during a lifecycle transition. A non-nil error moves the
// service to [StateFailed].
type Hook func(ctx context.Context) error

// HealthCheck reports whether one dependency of a running service is
// usable.
type HealthCheck func(ctx context.Context) error

// StateChangeHandler is notified synchronously after every transition.
type StateChangeHandler func(old, new State)

type namedCheck struct {
	name  string
	check HealthCheck
}

// Service owns the start/stop sequence of a long-running process. It is
// safe for concurrent use.
type Service struct {
	name    string
	version string
	logger  *slog.Logger
	tracer  trace.Tracer

	onStart  Hook
	onStop   Hook
	checks   []namedCheck
	handlers []StateChangeHandler

	mu        sync.RWMutex
	state     State
	startedAt *time.Time
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Uptime returns how long the service has been running, or zero when it
// is not running.
func (s *Service) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt == nil || s.state != StateRunning {
		return 0
	}
	return time.Since(*s.startedAt)
}

// Health returns nil when the service is running and every registered
// check passes. Failures carry [sserr.CodeUnavailable].
func (s *Service) Health(ctx context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
	}
	for _, c := range s.checks {
		if err := c.check(ctx); err != nil {
			return sserr.Wrap(err, sserr.CodeUnavailable, "lifecycle: health check failed").
				WithDetail("check", c.name)
		}
	}
	return nil
}

// setState transitions the service after validating the move. Invalid
// transitions return [sserr.CodeConflict].
func (s *Service) setState(new State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, new) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, new)
	}
	s.state = new

	for _, h := range s.handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"service", s.name,
						"old_state", string(old),
						"new_state", string(new),
					)
				}
			}()
			h(old, new)
		}()
	}
	return nil
}

// Start moves the service through [StateStarting] to [StateRunning],
// running the OnStart hook in between. A canceled ctx returns
// [sserr.CodeTimeout] without changing state.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return failSpan(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution"))
	}
	if err := s.setState(StateStarting); err != nil {
		return failSpan(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: starting service",
		"service", s.name,
		"version", s.version,
	)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "service", s.name, "error", err)
			_ = s.setState(StateFailed)
			return failSpan(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed"))
		}
	}

	if err := s.setState(StateRunning); err != nil {
		return failSpan(span, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service started", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

// Stop moves the service through [StateStopping] to [StateStopped],
// running the OnStop hook in between. Stopping a service in a terminal
// state is a no-op.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer span.End()

	if s.State().IsTerminal() {
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return failSpan(span, sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: stop canceled before execution"))
	}
	if err := s.setState(StateStopping); err != nil {
		return failSpan(span, err)
	}

	s.logger.InfoContext(ctx, "lifecycle: stopping service", "service", s.name)

	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "service", s.name, "error", err)
			_ = s.setState(StateFailed)
			return failSpan(span, sserr.Wrap(err, sserr.CodeInternal, "lifecycle: stop hook failed"))
		}
	}

	if err := s.setState(StateStopped); err != nil {
		return failSpan(span, err)
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: service stopped", "service", s.name)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Builder assembles a [Service].
//
//	svc, err := lifecycle.NewBuilder("insight-auth", version).
//	    WithLogger(logger).
//	    WithOnStart(providers.Start).
//	    WithOnStop(func(ctx context.Context) error { providers.Stop(); return registry.Close() }).
//	    Build()
type Builder struct {
	svc *Service
}

// NewBuilder starts building a service with the given name and version.
func NewBuilder(name, version string) *Builder {
	return &Builder{svc: &Service{
		name:    name,
		version: version,
		logger:  slog.Default(),
		state:   StateUnknown,
	}}
}

// WithLogger sets the logger. A nil logger is ignored.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	if logger != nil {
		b.svc.logger = logger
	}
	return b
}

// WithOnStart sets the hook run while starting.
func (b *Builder) WithOnStart(hook Hook) *Builder {
	b.svc.onStart = hook
	return b
}

// WithOnStop sets the hook run while stopping.
func (b *Builder) WithOnStop(hook Hook) *Builder {
	b.svc.onStop = hook
	return b
}

// WithHealthCheck adds a named check consulted by [Service.Health] in
// registration order.
func (b *Builder) WithHealthCheck(name string, check HealthCheck) *Builder {
	if check != nil {
		b.svc.checks = append(b.svc.checks, namedCheck{name: name, check: check})
	}
	return b
}

// OnStateChange registers a handler called after every transition.
// Handlers run under the state lock and must not call back into the
// service.
func (b *Builder) OnStateChange(handler StateChangeHandler) *Builder {
	if handler != nil {
		b.svc.handlers = append(b.svc.handlers, handler)
	}
	return b
}

// Build validates the service and returns it. An empty name yields
// [sserr.CodeValidationRequired].
func (b *Builder) Build() (*Service, error) {
	if b.svc.name == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "lifecycle: service name is required")
	}
	b.svc.tracer = otel.Tracer(tracerName)
	return b.svc, nil
}
