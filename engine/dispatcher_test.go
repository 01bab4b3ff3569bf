package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nodeedge/nodeedge/bridgeerr"
	"github.com/nodeedge/nodeedge/metrics"
	"github.com/nodeedge/nodeedge/transport"
	"github.com/nodeedge/nodeedge/types"
)

func newTestDispatcher(buf *bytes.Buffer) *dispatcher {
	return newDispatcher(buf, nil, &metrics.Collector{}, nil)
}

func lastLine(buf *bytes.Buffer) types.Envelope {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var env types.Envelope
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &env)
	return env
}

func TestDispatcherWritesEvalRequest(t *testing.T) {
	var buf bytes.Buffer
	d := newTestDispatcher(&buf)
	requests := make(chan *request, 1)
	messages := make(chan transport.Message)
	go d.run(requests, messages)

	w := newWaiter()
	requests <- &request{op: types.ReqEval, code: "1+1", waiter: w}

	// Give the dispatcher goroutine a chance to write before inspecting.
	deadline := time.After(time.Second)
	for buf.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatcher to write a request")
		default:
		}
	}

	env := lastLine(&buf)
	if env.Type != string(types.ReqEval) {
		t.Fatalf("Type = %q, want eval", env.Type)
	}
	var payload types.EvalPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Code != "1+1" {
		t.Fatalf("Code = %q, want 1+1", payload.Code)
	}
	if payload.EventID == "" {
		t.Fatal("EventID must not be empty")
	}
	close(requests)
}

func TestDispatcherResolvesMatchingResult(t *testing.T) {
	var buf bytes.Buffer
	d := newTestDispatcher(&buf)
	requests := make(chan *request, 1)
	messages := make(chan transport.Message, 1)
	go d.run(requests, messages)

	w := newWaiter()
	requests <- &request{op: types.ReqEval, code: "2+2", waiter: w}

	var env types.Envelope
	deadline := time.After(time.Second)
	for {
		if buf.Len() > 0 {
			env = lastLine(&buf)
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for request to be written")
		default:
		}
	}

	result, err := types.NaiveValue(4.0)
	if err != nil {
		t.Fatalf("NaiveValue: %v", err)
	}
	resultPayload, err := json.Marshal(types.ResultPayload{Result: result})
	if err != nil {
		t.Fatalf("marshal result payload: %v", err)
	}
	messages <- transport.Message{Envelope: &types.Envelope{
		Type:    string(types.ReqEval) + types.ResultSuffix,
		EventID: extractEventID(t, env),
		Payload: resultPayload,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := w.wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	var decoded float64
	if err := json.Unmarshal(value.Data, &decoded); err != nil {
		t.Fatalf("decode result data: %v", err)
	}
	if decoded != 4.0 {
		t.Fatalf("decoded = %v, want 4", decoded)
	}
	close(requests)
}

func TestDispatcherResolvesMatchingError(t *testing.T) {
	var buf bytes.Buffer
	d := newTestDispatcher(&buf)
	requests := make(chan *request, 1)
	messages := make(chan transport.Message, 1)
	go d.run(requests, messages)

	w := newWaiter()
	requests <- &request{op: types.ReqEval, code: "throw new Error('boom')", waiter: w}

	var env types.Envelope
	deadline := time.After(time.Second)
	for {
		if buf.Len() > 0 {
			env = lastLine(&buf)
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for request to be written")
		default:
		}
	}

	errPayload, err := json.Marshal(types.ErrorPayload{Error: types.JSError{Message: "boom", Stack: "at x"}})
	if err != nil {
		t.Fatalf("marshal error payload: %v", err)
	}
	messages <- transport.Message{Envelope: &types.Envelope{
		Type:    string(types.ReqEval) + types.ErrorSuffix,
		EventID: extractEventID(t, env),
		Payload: errPayload,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = w.wait(ctx)
	var jsErr *bridgeerr.JavaScriptError
	if !isJavaScriptError(err, &jsErr) {
		t.Fatalf("wait err = %v, want *JavaScriptError", err)
	}
	if jsErr.Message != "boom" {
		t.Fatalf("Message = %q, want boom", jsErr.Message)
	}
	close(requests)
}

func TestDispatcherFreeWritesNoWaiter(t *testing.T) {
	var buf bytes.Buffer
	d := newTestDispatcher(&buf)
	requests := make(chan *request, 1)
	messages := make(chan transport.Message)
	go d.run(requests, messages)

	requests <- &request{op: types.ReqFree, pointerID: 42}

	deadline := time.After(time.Second)
	for buf.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for free to be written")
		default:
		}
	}
	env := lastLine(&buf)
	if env.Type != string(types.ReqFree) {
		t.Fatalf("Type = %q, want free", env.Type)
	}
	var payload types.FreePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.PointerID != 42 {
		t.Fatalf("PointerID = %d, want 42", payload.PointerID)
	}
	close(requests)
}

func TestDispatcherFailAllOnRequestsClosed(t *testing.T) {
	var buf bytes.Buffer
	d := newTestDispatcher(&buf)
	requests := make(chan *request)
	messages := make(chan transport.Message)

	w := newWaiter()
	d.pending["pending-event"] = w
	go d.run(requests, messages)

	close(requests)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := w.wait(ctx)
	if err == nil {
		t.Fatal("expected the pending waiter to be released")
	}
}

func extractEventID(t *testing.T, env types.Envelope) string {
	t.Helper()
	switch env.Type {
	case string(types.ReqEval):
		var p types.EvalPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("decode eval payload: %v", err)
		}
		return p.EventID
	default:
		t.Fatalf("unsupported envelope type %q in test helper", env.Type)
		return ""
	}
}

func isJavaScriptError(err error, target **bridgeerr.JavaScriptError) bool {
	jsErr, ok := err.(*bridgeerr.JavaScriptError)
	if !ok {
		return false
	}
	*target = jsErr
	return true
}
