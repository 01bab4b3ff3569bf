// Package bridgeerr implements the bridge's error taxonomy: a root
// sentinel plus typed wrappers, so callers use errors.Is/errors.As instead
// of string matching, in the same sentinel-plus-wrapper shape as a
// classified storage error.
package bridgeerr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors. Every bridge error satisfies errors.Is(err, ErrBridge).
var (
	// ErrBridge is the root of the taxonomy.
	ErrBridge = errors.New("bridge error")

	// ErrValue indicates host-side argument validation failed (e.g.
	// awaiting a non-awaitable pointer).
	ErrValue = errors.New("bridge value error")

	// ErrType indicates a value could not be marshaled onto the wire.
	ErrType = errors.New("bridge type error")

	// ErrEnvSetup indicates the env directory or package install failed.
	ErrEnvSetup = errors.New("env setup error")

	// ErrEngineClosed indicates an operation was attempted on a stopped
	// engine, or one whose pending waiters were released after the child
	// exited.
	ErrEngineClosed = errors.New("engine closed")

	// ErrProtocol indicates a malformed wire message.
	ErrProtocol = errors.New("protocol error")

	// ErrAttributeMissing indicates attribute-form access to a property
	// the child no longer has. It wraps ErrValue, per test_proxy.py's
	// original BridgeValueError expectation.
	ErrAttributeMissing = fmt.Errorf("%w: attribute missing", ErrValue)

	// ErrKeyMissing indicates item-form access to a key the child no
	// longer has. It wraps ErrValue for the same reason.
	ErrKeyMissing = fmt.Errorf("%w: key missing", ErrValue)

	// ErrIndexOutOfRange indicates an array proxy index rejected by the
	// child as out of bounds. It wraps ErrValue for the same reason.
	ErrIndexOutOfRange = fmt.Errorf("%w: index out of range", ErrValue)

	// ErrEngineStart indicates the child exited, or the listener never
	// accepted a connection, before the engine finished starting.
	ErrEngineStart = errors.New("engine start error")
)

// BridgeError wraps a sentinel with an operation and optional message,
// always unwrapping to both the sentinel and ErrBridge.
type BridgeError struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *BridgeError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *BridgeError) Unwrap() error { return e.Err }

// Is reports whether target matches this error's sentinel kind, or the
// taxonomy root.
func (e *BridgeError) Is(target error) bool {
	return errors.Is(e.Kind, target) || target == ErrBridge
}

func newErr(kind error, op, msg string, err error) *BridgeError {
	return &BridgeError{Kind: kind, Op: op, Msg: msg, Err: err}
}

// ValueError constructs an ErrValue-classified error.
func ValueError(op, msg string) error { return newErr(ErrValue, op, msg, nil) }

// TypeError constructs an ErrType-classified error.
func TypeError(op, msg string) error { return newErr(ErrType, op, msg, nil) }

// EngineClosedError constructs an ErrEngineClosed-classified error.
func EngineClosedError(op string) error {
	return newErr(ErrEngineClosed, op, "engine is stopped", nil)
}

// ProtocolErrorf constructs an ErrProtocol-classified error.
func ProtocolErrorf(format string, args ...any) error {
	return newErr(ErrProtocol, "", fmt.Sprintf(format, args...), nil)
}

// AttributeMissingError constructs an ErrAttributeMissing-classified error
// for the named attribute.
func AttributeMissingError(name string) error {
	return newErr(ErrAttributeMissing, "get_attr", fmt.Sprintf("attribute %q not found", name), nil)
}

// KeyMissingError constructs an ErrKeyMissing-classified error for the
// given key (stringified for the message; callers may carry the original
// typed key alongside).
func KeyMissingError(key string) error {
	return newErr(ErrKeyMissing, "get_item", fmt.Sprintf("key %q not found", key), nil)
}

// IndexOutOfRangeError constructs an ErrIndexOutOfRange-classified error.
func IndexOutOfRangeError(index int) error {
	return newErr(ErrIndexOutOfRange, "get_item", fmt.Sprintf("index %d out of range", index), nil)
}

// EngineStartError constructs an ErrEngineStart-classified error, for a
// child that crashed or never connected during Engine.Start.
func EngineStartError(op, msg string) error { return newErr(ErrEngineStart, op, msg, nil) }

// EnvSetupError wraps an install/provisioning failure. message is the
// last portion of the installer's stderr, per spec.
func EnvSetupError(op, message string) error {
	return newErr(ErrEnvSetup, op, message, nil)
}

// JavaScriptError is a forwarded exception from the child runtime. Its
// string form is "<message>:\n<stack>" exactly, so the host-visible
// rendering matches the child's own error formatting.
type JavaScriptError struct {
	Message string
	Stack   string
	Extra   map[string]any
}

func (e *JavaScriptError) Error() string {
	return fmt.Sprintf("%s:\n%s", e.Message, e.Stack)
}

// Is reports whether target is the taxonomy root, so
// errors.Is(err, bridgeerr.ErrBridge) matches JavaScriptError too.
func (e *JavaScriptError) Is(target error) bool { return target == ErrBridge }

// classifierTable maps installer stderr substrings to a human hint
// appended to the EnvSetupError message. Order matters: first match wins.
var classifierTable = []struct {
	patterns []string
	hint     string
}{
	{[]string{"EACCES", "permission denied"}, "permission denied writing env directory"},
	{[]string{"ENOSPC", "no space left"}, "no space left on device"},
	{[]string{"ENOTFOUND", "getaddrinfo", "network"}, "network error reaching package registry"},
	{[]string{"404", "not found"}, "dependency not found in registry"},
}

// ReclassifyMissing inspects a forwarded JavaScriptError and, when its
// message matches one of the child's deterministic "no such X" phrasings
// for the given access kind ("attr" or "item"), rewrites it into the more
// specific ErrAttributeMissing/ErrKeyMissing/ErrIndexOutOfRange taxonomy
// member. Any other error, including a nil one, passes through unchanged.
// This is the same classify-by-substring idiom as ClassifyInstallFailure,
// applied to a two- or three-pattern table instead of a longer one.
func ReclassifyMissing(err error, accessKind string) error {
	if err == nil {
		return nil
	}
	var jsErr *JavaScriptError
	if !errors.As(err, &jsErr) {
		return err
	}
	switch accessKind {
	case "attr":
		if strings.HasPrefix(jsErr.Message, "no such property:") {
			return AttributeMissingError(strings.TrimPrefix(jsErr.Message, "no such property: "))
		}
	case "item":
		if strings.HasPrefix(jsErr.Message, "index out of range:") {
			index, _ := strconv.Atoi(strings.TrimPrefix(jsErr.Message, "index out of range: "))
			return IndexOutOfRangeError(index)
		}
		if strings.HasPrefix(jsErr.Message, "no such key:") {
			return KeyMissingError(strings.TrimPrefix(jsErr.Message, "no such key: "))
		}
	}
	return err
}

// ClassifyInstallFailure appends a short hint to an installer's stderr
// tail when a known pattern matches, walking the table in order.
func ClassifyInstallFailure(stderrTail string) string {
	lower := strings.ToLower(stderrTail)
	for _, entry := range classifierTable {
		for _, p := range entry.patterns {
			if strings.Contains(lower, strings.ToLower(p)) {
				return fmt.Sprintf("%s (%s)", stderrTail, entry.hint)
			}
		}
	}
	return stderrTail
}
