package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/atelierai/agentcore/internal/backoff"
	"github.com/atelierai/agentcore/internal/observability"
	"github.com/atelierai/agentcore/pkg/models"
)

// AdmissionGate is the subset of the Credit Ledger the dispatcher needs to
// gate a billable tool call (spec §4.3 step 4, §4.7). Implemented by
// internal/ledger.Ledger.
type AdmissionGate interface {
	CanDebit(ctx context.Context, subject models.Subject, amount float64) (bool, error)
	Debit(ctx context.Context, subject models.Subject, amount float64, source models.ActionSource, actionType models.ActionType, entityID string) (*models.CreditTransaction, error)
}

// DefaultMaxRetries is the bounded retry count for Retryable dispatch
// errors (spec §4.3).
const DefaultMaxRetries = 2

// Dispatcher translates model-emitted tool calls into typed invocations and
// the (Full, User) response pair, gating each billable call through the
// ledger (spec §4.3).
type Dispatcher struct {
	Registry    *Registry
	Admission   AdmissionGate
	MaxRetries  int
	Logger      *slog.Logger
	Metrics     *observability.Metrics // nil disables recording
	Tracer      *observability.Tracer  // nil disables tracing
	schemaCache sync.Map               // string(schema json) -> *jsonschema.Schema
}

// NewDispatcher constructs a Dispatcher with spec defaults.
func NewDispatcher(registry *Registry, admission AdmissionGate, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Registry:   registry,
		Admission:  admission,
		MaxRetries: DefaultMaxRetries,
		Logger:     logger,
	}
}

// Outcome is the result of a successful dispatch: both response shapes plus
// the committed ledger transaction, if the tool had a nonzero cost.
type Outcome struct {
	Full        *models.FullToolResponse
	User        *models.UserToolResponse
	Transaction *models.CreditTransaction
	Attempts    int
}

// Dispatch executes the spec §4.3 procedure for one tool call.
func (d *Dispatcher) Dispatch(ctx context.Context, call models.ToolCall, caller CallerContext, subject models.Subject, deadline time.Duration) (outcome *Outcome, err error) {
	if d.Tracer != nil {
		var span trace.Span
		ctx, span = d.Tracer.TraceToolExecution(ctx, call.Name)
		defer func() {
			if err != nil {
				d.Tracer.RecordError(span, err)
			}
			span.End()
		}()
	}

	start := time.Now()
	if d.Metrics != nil {
		defer func() {
			status := "success"
			if err != nil {
				status = "error"
				var toolErr *ToolError
				if errors.As(err, &toolErr) && toolErr.Kind == KindQuotaExceeded {
					status = "admission_denied"
				}
			}
			retries := 0
			if outcome != nil && outcome.Attempts > 1 {
				retries = outcome.Attempts - 1
			}
			d.Metrics.RecordToolExecution(call.Name, status, time.Since(start).Seconds(), retries)
		}()
	}

	tool, ok := d.Registry.Get(call.Name)
	if !ok {
		return nil, ErrUnknownTool(call.Name)
	}

	params, err := d.decodeArgs(tool, call.Name, call.Input)
	if err != nil {
		return nil, err
	}
	// Step 3: dispatch injects identity; the model's own values (if any)
	// for caller-scoped fields are discarded here, not merely overridden.
	params.ApplyCaller(caller)

	cost := float64(tool.Cost())
	if cost > 0 {
		ok, err := d.Admission.CanDebit(ctx, subject, cost)
		if err != nil {
			return nil, ErrQuotaExceeded(call.Name, err)
		}
		if !ok {
			return nil, ErrQuotaExceeded(call.Name, nil)
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if deadline > 0 {
		callCtx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}

	result, attempts, err := d.invokeWithRetry(callCtx, tool, params)
	if err != nil {
		return nil, err
	}
	if result.Full == nil || result.User == nil {
		return nil, &ToolError{Kind: KindFatal, ToolName: call.Name, Reason: "handler returned only one of (full, user) response"}
	}

	var txn *models.CreditTransaction
	if cost > 0 {
		txn, err = d.Admission.Debit(ctx, subject, cost, models.ActionSourceToolCall, models.ActionType(call.Name), call.ID)
		if err != nil {
			return nil, ErrQuotaExceeded(call.Name, err)
		}
	}

	return &Outcome{Full: result.Full, User: result.User, Transaction: txn, Attempts: attempts}, nil
}

// decodeArgs validates raw args against the tool's declared schema, then
// unmarshals into the tool's concrete parameter type. Extra fields are
// ignored by encoding/json unmarshal semantics (spec §4.3 step 2).
func (d *Dispatcher) decodeArgs(tool Tool, toolName string, raw json.RawMessage) (Params, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	schema, err := d.compiledSchema(tool)
	if err == nil && schema != nil {
		var decoded any
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil {
			if valErr := schema.Validate(decoded); valErr != nil {
				field, reason := firstValidationError(valErr)
				return nil, ErrInvalidArguments(toolName, field, reason)
			}
		}
	}

	params := tool.NewParams()
	if err := json.Unmarshal(raw, params); err != nil {
		return nil, ErrInvalidArguments(toolName, "", err.Error())
	}
	return params, nil
}

func (d *Dispatcher) compiledSchema(tool Tool) (*jsonschema.Schema, error) {
	decl := Declaration{}
	for _, dd := range d.Registry.Declarations() {
		if dd.Name == tool.Name() {
			decl = dd
			break
		}
	}
	if len(decl.Parameters) == 0 {
		return nil, nil
	}
	key := string(decl.Parameters)
	if cached, ok := d.schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(tool.Name()+".schema.json", key)
	if err != nil {
		return nil, err
	}
	d.schemaCache.Store(key, compiled)
	return compiled, nil
}

func firstValidationError(err error) (field, reason string) {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		cur := ve
		for len(cur.Causes) > 0 {
			cur = cur.Causes[0]
		}
		return cur.InstanceLocation, cur.Message
	}
	return "", err.Error()
}

// invokeWithRetry runs the handler, retrying Retryable failures up to
// MaxRetries with exponential backoff (spec §4.3 step 7).
func (d *Dispatcher) invokeWithRetry(ctx context.Context, tool Tool, params Params) (*HandlerResult, int, error) {
	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	policy := backoff.ToolRetryPolicy()

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, &ToolError{Kind: KindCancelled, ToolName: tool.Name(), Cause: err}
		}

		result, err := tool.Handler(ctx, params)
		if err == nil {
			return result, attempt, nil
		}

		toolErr := classifyHandlerError(tool.Name(), err)
		lastErr = toolErr
		if !toolErr.Kind.IsRetryable() || attempt > maxRetries {
			return nil, attempt, toolErr
		}

		delay := backoff.Compute(policy, attempt)
		d.Logger.Warn("retrying tool call", "tool", tool.Name(), "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt, &ToolError{Kind: KindCancelled, ToolName: tool.Name(), Cause: ctx.Err()}
		}
	}
	return nil, maxRetries + 1, lastErr
}
