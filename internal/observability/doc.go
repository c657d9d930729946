// Package observability centralizes the ambient stack shared by the agent
// loop, tool dispatch, and credit ledger: metrics, structured logging, and
// distributed tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// None of it participates in a correctness invariant; it exists so a
// deployment can see what the system is doing.
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - LLM provider request latency and token usage
//   - Tool dispatch outcomes, latencies, and retries
//   - Credit ledger debits
//   - Session lifecycle (active count, terminal duration)
//   - Context compaction runs and token estimates
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... call the provider ...
//	metrics.RecordLLMRequest("anthropic", "claude-3-5-sonnet", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
//	start = time.Now()
//	// ... dispatch the tool ...
//	metrics.RecordToolExecution("document", "success", time.Since(start).Seconds(), 0)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request/session/user/organization correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens, JWTs)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//	ctx = observability.AddOrganization(ctx, organizationID)
//
//	logger.Info(ctx, "dispatching tool",
//	    "tool_name", "document",
//	    "cost", 3,
//	)
//
//	logger.Error(ctx, "llm request failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track a turn end-to-end:
// admission gate, context evaluation, compaction, the LLM call, and each
// dispatched tool call. NewTracer establishes the resource, sampler, and
// propagator; span export (batching, an OTLP exporter, etc.) is
// deployment-specific and wired in separately via sdktrace.WithBatcher on
// the returned provider.
//
// Example usage:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "agentcored",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    SamplingRate:   0.1, // sample 10% of traces
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceStep(ctx, session.ID)
//	defer span.End()
//
//	ctx, llmSpan := tracer.TraceLLMRequest(ctx, "anthropic", "claude-3-5-sonnet")
//	defer llmSpan.End()
//	tracer.SetAttributes(llmSpan, "prompt_tokens", 100, "completion_tokens", 500)
//
//	ctx, toolSpan := tracer.TraceToolExecution(ctx, "document")
//	defer toolSpan.End()
//	if err != nil {
//	    tracer.RecordError(toolSpan, err)
//	}
//
// # Context Propagation
//
// All three components integrate with Go's context for automatic correlation:
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddUserID(ctx, "user-789")
//	ctx = observability.AddOrganization(ctx, "org-acme")
//
//	logger.Info(ctx, "processing turn") // includes request_id, session_id, etc.
//
//	ctx, span := tracer.Start(ctx, "operation")
//	// trace context propagates to child spans
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens (used for signed session snapshots)
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Testing
//
// All components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil against an
//     isolated registry
//   - Logging can write to a bytes.Buffer for assertions
//   - Tracing works without a configured exporter in tests; spans are
//     still created and sampled, just not shipped anywhere
package observability
