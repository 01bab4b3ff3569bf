package types

import "encoding/json"

// RequestType tags the kind of request the dispatcher may write to the
// socket. Mirrors the wire protocol table.
type RequestType string

const (
	ReqEval    RequestType = "eval"
	ReqAwait   RequestType = "await"
	ReqCall    RequestType = "call"
	ReqGetAttr RequestType = "get_attr"
	ReqSetAttr RequestType = "set_attr"
	ReqDelAttr RequestType = "del_attr"
	ReqGetItem RequestType = "get_item"
	ReqSetItem RequestType = "set_item"
	ReqDelItem RequestType = "del_item"
	ReqLength  RequestType = "length"
	ReqKeys    RequestType = "keys"
	ReqRepr    RequestType = "repr"
	ReqFree    RequestType = "free"
)

// ResultSuffix and ErrorSuffix are appended to a request type to form the
// corresponding response type, e.g. "eval_result" / "eval_error".
const (
	ResultSuffix = "_result"
	ErrorSuffix  = "_error"
)

// Envelope is the outer shape of every line written to or read from the
// socket. Payload is deferred as raw JSON; callers decode it once Type is
// known, per the structural-dispatch-by-tag idiom.
type Envelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EvalPayload is the payload of an "eval" request.
type EvalPayload struct {
	EventID string `json:"event_id"`
	Code    string `json:"code"`
}

// AwaitPayload is the payload of an "await" request.
type AwaitPayload struct {
	EventID   string `json:"event_id"`
	PointerID int64  `json:"pointer_id"`
}

// CallPayload is the payload of a "call" request. Args are pre-marshaled
// argument envelopes, with pointer arguments already rewritten to
// {"__pointer__": id} by the caller.
type CallPayload struct {
	EventID   string            `json:"event_id"`
	PointerID int64             `json:"pointer_id"`
	Args      []json.RawMessage `json:"args"`
}

// AttrPayload is the payload of get_attr/set_attr/del_attr requests.
// Value is only present for set_attr.
type AttrPayload struct {
	EventID   string          `json:"event_id"`
	PointerID int64           `json:"pointer_id"`
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// ItemPayload is the payload of get_item/set_item/del_item requests. Key is
// a string or a number, left as raw JSON to preserve its wire type.
type ItemPayload struct {
	EventID   string          `json:"event_id"`
	PointerID int64           `json:"pointer_id"`
	Key       json.RawMessage `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// PointerOnlyPayload is the payload of length/keys/repr requests, which
// need nothing beyond the event id and the target pointer.
type PointerOnlyPayload struct {
	EventID   string `json:"event_id"`
	PointerID int64  `json:"pointer_id"`
}

// FreePayload is the payload of a "free" request. It carries no event id:
// the dispatcher never registers a waiter for it and expects no response.
type FreePayload struct {
	PointerID int64 `json:"pointer_id"`
}

// ResultPayload is the payload of a "<op>_result" response.
type ResultPayload struct {
	Result Value `json:"result"`
}

// ErrorPayload is the payload of a "<op>_error" response.
type ErrorPayload struct {
	Error JSError `json:"error"`
}
