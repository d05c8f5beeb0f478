// Package dispatch executes tool calls requested by the model: registry
// lookup, argument validation, handler execution with panic recovery, and
// timeout-plus-retry for external tools. Every failure maps to an error kind
// and a corrective observation the model can act on.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nstogner/keeper/pkg/domain"
	"github.com/nstogner/keeper/pkg/registry"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keeper_tool_dispatch_total",
		Help: "Tool dispatch outcomes by tool name and result.",
	}, []string{"tool", "outcome"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keeper_tool_dispatch_duration_seconds",
		Help:    "Tool handler execution time.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})
)

// Dispatcher routes validated tool calls to their handlers.
type Dispatcher struct {
	Registry *registry.Registry

	// Timeout bounds each attempt of an external tool. In-process tools run
	// under the caller's context unmodified.
	Timeout time.Duration

	// Attempts is the total number of tries for external tools (minimum 1).
	Attempts int

	// Backoff is the initial delay between external retries; it doubles
	// after each failed attempt.
	Backoff time.Duration

	Log *slog.Logger
}

// Dispatch executes a single tool call and always returns a result. Failures
// never surface as errors: they come back as results with IsError set and a
// corrective Content the model reads on the next round. The call's Status is
// updated in place.
func (d *Dispatcher) Dispatch(ctx context.Context, call *domain.ToolCall) domain.ToolResult {
	spec, ok := d.Registry.Get(call.Name)
	if !ok {
		return d.fail(call, domain.ErrUnknownTool,
			fmt.Sprintf("no tool named %q exists. Available tools: %s. Pick one of those or answer directly.",
				call.Name, strings.Join(d.toolNames(), ", ")))
	}

	if fieldErrs := spec.Validate(call.Input); len(fieldErrs) > 0 {
		lines := make([]string, len(fieldErrs))
		for i, fe := range fieldErrs {
			lines[i] = "- " + fe.String()
		}
		return d.fail(call, domain.ErrInvalidArguments,
			fmt.Sprintf("arguments for %q are invalid:\n%s\nCorrect every field and call the tool again.",
				call.Name, strings.Join(lines, "\n")))
	}

	start := time.Now()
	out, err := d.run(ctx, spec, call.Input)
	dispatchDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		call.Status = domain.ToolCallExecuted
		dispatchTotal.WithLabelValues(call.Name, "ok").Inc()
		return domain.ToolResult{ToolCallID: call.ID, Content: out}

	case errors.Is(err, context.DeadlineExceeded):
		return d.fail(call, domain.ErrToolTimeout,
			fmt.Sprintf("tool %q timed out. Try again with a narrower request, or answer without it.", call.Name))

	default:
		return d.fail(call, domain.ErrToolExecution,
			fmt.Sprintf("tool %q failed: %v. You may retry once or answer without it.", call.Name, err))
	}
}

// run executes the handler. External tools get a per-attempt timeout and a
// doubling backoff between attempts; a context.DeadlineExceeded from the
// final attempt propagates so Dispatch can classify it as a timeout.
func (d *Dispatcher) run(ctx context.Context, spec *registry.Spec, args map[string]any) (out string, err error) {
	attempts := 1
	if spec.External && d.Attempts > 1 {
		attempts = d.Attempts
	}

	backoff := d.Backoff
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if d.Log != nil {
				d.Log.Warn("retrying external tool", "tool", spec.Name, "attempt", i+1, "err", err)
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			backoff *= 2
		}

		out, err = d.attempt(ctx, spec, args)
		if err == nil {
			return out, nil
		}
		// The parent context ending is not transient.
		if ctx.Err() != nil {
			return "", err
		}
	}
	return "", err
}

func (d *Dispatcher) attempt(ctx context.Context, spec *registry.Spec, args map[string]any) (out string, err error) {
	if spec.External && d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	// A panicking handler must not take the session down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return spec.Handler(ctx, args)
}

func (d *Dispatcher) fail(call *domain.ToolCall, kind domain.ErrorKind, observation string) domain.ToolResult {
	call.Status = domain.ToolCallFailed
	dispatchTotal.WithLabelValues(call.Name, string(kind)).Inc()
	if d.Log != nil {
		d.Log.Warn("tool call failed", "tool", call.Name, "kind", kind)
	}
	return domain.ToolResult{
		ToolCallID: call.ID,
		Content:    observation,
		IsError:    true,
		ErrorKind:  kind,
	}
}

func (d *Dispatcher) toolNames() []string {
	specs := d.Registry.Specs()
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}
