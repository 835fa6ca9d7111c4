package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"wingman/internal/domain"
	"wingman/internal/infra/tracer"
)

// Resolve executes every function call of resp in order and appends, per
// call, the echoed function_call item and its function_call_output to
// body.Input. record, when non-nil, receives "[tool] call" and "[tool] result"
// breadcrumbs. It reports whether at least one call was processed.
//
// Malformed arguments run the tool with an empty object. Unknown tools answer
// {"result": true}. A failing tool answers {"error": "<message>"}; nothing
// aborts the turn.
func (r *Registry) Resolve(ctx context.Context, body *domain.ResponsesRequest, resp *domain.ResponsesResponse, record domain.ToolCallRecorder) bool {
	if resp == nil {
		return false
	}
	calls := resp.FunctionCalls()
	for _, call := range calls {
		output := r.Call(ctx, call.Name, call.Arguments, record)

		echoArgs := call.Arguments
		if echoArgs == "" {
			echoArgs = "{}"
		}
		body.Input = append(body.Input,
			domain.FunctionCallItem{
				Type:      domain.ItemTypeFunctionCall,
				CallID:    call.CallID,
				Name:      call.Name,
				Arguments: echoArgs,
			},
			domain.FunctionCallOutputItem{
				Type:   domain.ItemTypeFunctionCallOutput,
				CallID: call.CallID,
				Output: output,
			},
		)
	}
	return len(calls) > 0
}

// Call executes one tool call and returns its JSON output string.
func (r *Registry) Call(ctx context.Context, name, rawArgs string, record domain.ToolCallRecorder) string {
	args := parseArgs(rawArgs)
	if record != nil {
		record("[tool] call: "+name, args)
	}

	result := r.execute(ctx, name, args)

	if record != nil {
		record("[tool] result: "+name, result)
	}
	return encodeOutput(result)
}

// parseArgs decodes a call's argument string; anything but a JSON object
// decodes to an empty map.
func parseArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func (r *Registry) execute(ctx context.Context, name string, args map[string]any) any {
	e, ok := r.lookup(name)
	if !ok {
		r.logger.Debug("no executor for tool, answering stub", "tool", name)
		return map[string]any{"result": true}
	}

	if err := validateArgs(e.schema, args); err != nil {
		r.logger.Warn("tool arguments do not match schema", "tool", name, "error", err)
	}

	r.publish(domain.EventToolCallStarted, map[string]any{"tool": name})
	ctx, span := tracer.StartSpan(ctx, "tool."+name,
		trace.WithAttributes(tracer.StringAttr("tool.name", name)),
	)
	result, err := r.run(ctx, e.exec, args)
	tracer.End(span, err)

	completed := map[string]any{"tool": name}
	if err != nil {
		completed["error"] = err.Error()
	}
	r.publish(domain.EventToolCallCompleted, completed)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewSubSystemError("tool", "Registry.execute", domain.ErrTimeout, name)
		}
		r.logger.Warn("tool execution failed", "tool", name, "error", err,
			"code", string(domain.ErrorCodeOf(err)))
		return map[string]any{"error": err.Error()}
	}
	return result
}

// run executes exec under the registry timeout. An executor that ignores
// its context is abandoned when the deadline passes.
func (r *Registry) run(ctx context.Context, exec domain.ToolExecutor, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		res, err := exec(ctx, args)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// encodeOutput serialises a tool result; a nil result becomes {}.
func encodeOutput(result any) string {
	if result == nil {
		return "{}"
	}
	data, err := json.Marshal(result)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": fmt.Sprintf("unencodable tool result: %v", err)})
	}
	return string(data)
}
