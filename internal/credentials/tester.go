package credentials

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kaiwa/internal/debounce"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/internal/telemetry"
)

// Result is the outcome of one credential test.
type Result struct {
	FormID     string `json:"form_id"`
	Generation uint64 `json:"generation"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	// Unsupported is set when the configuration cannot be verified here.
	Unsupported bool `json:"unsupported,omitempty"`
	// Stale is set when a newer test or form edit superseded this one. A
	// stale result is never recorded as the form's latest.
	Stale     bool          `json:"stale"`
	Duration  time.Duration `json:"duration_ns"`
	CheckedAt time.Time     `json:"checked_at"`
}

type formState struct {
	gen    debounce.Generation
	cancel context.CancelFunc
	latest *Result
}

// Tester runs credential tests per form. Starting a test, or touching the
// form, supersedes any test still in flight for the same form.
type Tester struct {
	checker Checker
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	mu    sync.Mutex
	forms map[string]*formState
}

// NewTester returns a Tester. A non-positive timeout disables the per-test
// deadline.
func NewTester(checker Checker, timeout time.Duration, logger *slog.Logger) *Tester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tester{
		checker: checker,
		timeout: timeout,
		logger:  logger,
		tracer:  telemetry.Tracer("kaiwa/credentials"),
		forms:   make(map[string]*formState),
	}
}

func (t *Tester) form(id string) *formState {
	st, ok := t.forms[id]
	if !ok {
		st = &formState{}
		t.forms[id] = st
	}
	return st
}

// Run tests cfg for formID and waits for the outcome.
func (t *Tester) Run(ctx context.Context, formID string, cfg model.ClientConfig) Result {
	t.mu.Lock()
	st := t.form(formID)
	if st.cancel != nil {
		st.cancel()
	}
	gen := st.gen.Next()
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	st.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	sdk, _ := cfg.SDK()
	runCtx, span := t.tracer.Start(runCtx, "credentials.test",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("kaiwa.sdk", string(sdk))),
	)
	start := time.Now()
	err := t.checker.Check(runCtx, cfg)
	res := Result{FormID: formID, Generation: gen, OK: err == nil, Duration: time.Since(start), CheckedAt: start.UTC()}
	if err != nil {
		res.Error = err.Error()
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			res.Error = upstream.Message
			res.StatusCode = upstream.StatusCode
		}
		res.Unsupported = errors.Is(err, ErrUnsupported)
		span.RecordError(err)
		span.SetStatus(codes.Error, res.Error)
	}
	span.End()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !st.gen.IsCurrent(gen) || t.forms[formID] != st {
		res.Stale = true
		t.logger.Debug("credentials: discarding stale test result", "form_id", formID, "generation", gen)
		return res
	}
	st.cancel = nil
	st.latest = &res
	return res
}

// Touch records that a form field changed: any test in flight for the form
// is cancelled and its result will be stale.
func (t *Tester) Touch(formID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.forms[formID]
	if !ok {
		return
	}
	st.gen.Invalidate()
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	st.latest = nil
}

// Latest returns the most recent non-stale result for a form.
func (t *Tester) Latest(formID string) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.forms[formID]
	if !ok || st.latest == nil {
		return Result{}, false
	}
	return *st.latest, true
}

// Forget drops all state for a form, cancelling any test in flight.
func (t *Tester) Forget(formID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.forms[formID]; ok {
		st.gen.Invalidate()
		if st.cancel != nil {
			st.cancel()
		}
		delete(t.forms, formID)
	}
}
