package engine

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/nodeedge/nodeedge/bridgeerr"
	"github.com/nodeedge/nodeedge/ipc"
	"github.com/nodeedge/nodeedge/log"
	"github.com/nodeedge/nodeedge/metrics"
	"github.com/nodeedge/nodeedge/transport"
	"github.com/nodeedge/nodeedge/types"
)

// request is the single event shape carried on the dispatcher's request
// queue. Only the fields relevant to op are populated; free requests carry
// no waiter, since the protocol gives them no response to wait for.
type request struct {
	op        types.RequestType
	pointerID int64
	name      string
	key       json.RawMessage
	value     json.RawMessage
	args      []json.RawMessage
	code      string
	waiter    *waiter
}

// responseKind classifies a decoded response envelope's type suffix.
type responseKind int

const (
	kindUnmatched responseKind = iota
	kindResult
	kindError
)

func splitResponseType(wireType string) (op string, kind responseKind) {
	if op, ok := strings.CutSuffix(wireType, types.ResultSuffix); ok {
		return op, kindResult
	}
	if op, ok := strings.CutSuffix(wireType, types.ErrorSuffix); ok {
		return op, kindError
	}
	return "", kindUnmatched
}

// dispatcher is the single goroutine that owns the socket's write side and
// the pending table. It is never touched by any other goroutine: the
// pending table needs no mutex precisely because of this single-writer,
// single-reader-of-its-own-state discipline.
type dispatcher struct {
	conn    io.Writer
	pending map[string]*waiter

	logger  *log.Logger
	metrics *metrics.Collector
	trace   *traceSink
}

func newDispatcher(conn io.Writer, logger *log.Logger, m *metrics.Collector, trace *traceSink) *dispatcher {
	return &dispatcher{
		conn:    conn,
		pending: make(map[string]*waiter),
		logger:  logger,
		metrics: m,
		trace:   trace,
	}
}

// run drains requests and incoming messages until either channel closes,
// merging host-request order and child-message order into the single FIFO
// the dispatcher then processes strictly one event at a time.
func (d *dispatcher) run(requests <-chan *request, messages <-chan transport.Message) {
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				d.failAll(bridgeerr.EngineClosedError("dispatcher stopped"))
				return
			}
			d.handleRequest(req)
		case msg, ok := <-messages:
			if !ok {
				d.failAll(bridgeerr.EngineClosedError("child connection closed"))
				return
			}
			d.handleMessage(msg)
		}
	}
}

func (d *dispatcher) handleRequest(req *request) {
	if req.op == types.ReqFree {
		d.writeFree(req.pointerID)
		return
	}

	eventID := uuid.NewString()
	payload, err := buildPayload(req.op, eventID, req)
	if err != nil {
		req.waiter.resolve(types.Value{}, err)
		return
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		req.waiter.resolve(types.Value{}, bridgeerr.TypeError(string(req.op), err.Error()))
		return
	}

	d.pending[eventID] = req.waiter

	env := types.Envelope{Type: string(req.op), Payload: payloadJSON}
	if err := ipc.WriteLine(d.conn, env); err != nil {
		delete(d.pending, eventID)
		req.waiter.resolve(types.Value{}, bridgeerr.EngineClosedError(string(req.op)))
		return
	}
	d.metrics.IncRequestSent()
	d.trace.record("out", env)
}

func (d *dispatcher) writeFree(pointerID int64) {
	payloadJSON, err := json.Marshal(types.FreePayload{PointerID: pointerID})
	if err != nil {
		return
	}
	env := types.Envelope{Type: string(types.ReqFree), Payload: payloadJSON}
	if err := ipc.WriteLine(d.conn, env); err != nil {
		return
	}
	d.metrics.IncPointerFreed()
	d.trace.record("out", env)
}

func buildPayload(op types.RequestType, eventID string, req *request) (any, error) {
	switch op {
	case types.ReqEval:
		return types.EvalPayload{EventID: eventID, Code: req.code}, nil
	case types.ReqAwait:
		return types.AwaitPayload{EventID: eventID, PointerID: req.pointerID}, nil
	case types.ReqCall:
		return types.CallPayload{EventID: eventID, PointerID: req.pointerID, Args: req.args}, nil
	case types.ReqGetAttr, types.ReqDelAttr:
		return types.AttrPayload{EventID: eventID, PointerID: req.pointerID, Name: req.name}, nil
	case types.ReqSetAttr:
		return types.AttrPayload{EventID: eventID, PointerID: req.pointerID, Name: req.name, Value: req.value}, nil
	case types.ReqGetItem, types.ReqDelItem:
		return types.ItemPayload{EventID: eventID, PointerID: req.pointerID, Key: req.key}, nil
	case types.ReqSetItem:
		return types.ItemPayload{EventID: eventID, PointerID: req.pointerID, Key: req.key, Value: req.value}, nil
	case types.ReqLength, types.ReqKeys, types.ReqRepr:
		return types.PointerOnlyPayload{EventID: eventID, PointerID: req.pointerID}, nil
	default:
		return nil, bridgeerr.ProtocolErrorf("unknown request type %q", op)
	}
}

func (d *dispatcher) handleMessage(msg transport.Message) {
	if msg.Err != nil {
		d.metrics.IncProtocolError()
		if d.logger != nil {
			d.logger.Warn("protocol error", map[string]any{"error": msg.Err.Error()})
		}
		return
	}

	env := msg.Envelope
	op, kind := splitResponseType(env.Type)

	switch kind {
	case kindResult:
		w, ok := d.pending[env.EventID]
		if !ok {
			return
		}
		delete(d.pending, env.EventID)

		var rp types.ResultPayload
		if err := json.Unmarshal(env.Payload, &rp); err != nil {
			d.metrics.IncProtocolError()
			w.resolve(types.Value{}, bridgeerr.ProtocolErrorf("decode %s result: %v", op, err))
			return
		}
		d.metrics.IncResultReceived()
		d.trace.record("in", *env)
		w.resolve(rp.Result, nil)

	case kindError:
		w, ok := d.pending[env.EventID]
		if !ok {
			return
		}
		delete(d.pending, env.EventID)

		var ep types.ErrorPayload
		if err := json.Unmarshal(env.Payload, &ep); err != nil {
			d.metrics.IncProtocolError()
			w.resolve(types.Value{}, bridgeerr.ProtocolErrorf("decode %s error: %v", op, err))
			return
		}
		d.metrics.IncJavaScriptError()
		d.trace.record("in", *env)
		w.resolve(types.Value{}, &bridgeerr.JavaScriptError{
			Message: ep.Error.Message,
			Stack:   ep.Error.Stack,
			Extra:   ep.Error.Extra,
		})

	default:
		if d.logger != nil {
			d.logger.Debug("dropped unmatched message", map[string]any{"type": env.Type})
		}
	}
}

// failAll releases every outstanding waiter with err, used when the
// dispatcher loop is about to exit because the engine stopped or the
// child connection is gone.
func (d *dispatcher) failAll(err error) {
	for id, w := range d.pending {
		w.resolve(types.Value{}, err)
		delete(d.pending, id)
	}
}
