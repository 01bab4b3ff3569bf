// Package engine implements the Engine public API: it wires the Env
// Provisioner, Child Supervisor, and Transport into a running bridge, and
// exposes Eval/Await/ImportFrom/AsMapping plus the Backend surface the
// proxy package dispatches through.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodeedge/nodeedge/bridgeerr"
	"github.com/nodeedge/nodeedge/env"
	"github.com/nodeedge/nodeedge/iox"
	"github.com/nodeedge/nodeedge/log"
	"github.com/nodeedge/nodeedge/metrics"
	"github.com/nodeedge/nodeedge/proxy"
	"github.com/nodeedge/nodeedge/supervisor"
	"github.com/nodeedge/nodeedge/transport"
	"github.com/nodeedge/nodeedge/types"
)

// defaultConnectTimeout bounds how long Start waits for the child's
// inbound connection before failing with EngineStartError.
const defaultConnectTimeout = 5 * time.Second

// defaultQueueCapacity is the dispatcher's request queue capacity. A
// producer blocks indefinitely once the queue is full, per the resolved
// open question in SPEC_FULL.md: no caller in scope needs a timeout.
const defaultQueueCapacity = 1000

// Config configures a single Engine instance.
type Config struct {
	// Manifest is the package.json-shaped dependency manifest signed to
	// address the env directory.
	Manifest types.Manifest

	// InstallerBin is the package manager binary, e.g. "npm". Defaults to
	// "npm".
	InstallerBin string
	// KeepLock preserves an existing lockfile across env creation.
	KeepLock bool
	// Debug inherits the child's stdio instead of discarding it. It does
	// not change the logger's level; the default logger always emits
	// debug-level entries.
	Debug bool
	// EnvDirCandidates overrides the provisioner's default candidate
	// directories (user cache dir, then temp dir).
	EnvDirCandidates []string
	// ConnectTimeout bounds how long Start waits for the child to
	// connect. Defaults to defaultConnectTimeout.
	ConnectTimeout time.Duration
	// QueueCapacity bounds the dispatcher's request queue. Defaults to
	// defaultQueueCapacity.
	QueueCapacity int

	// Cache is an optional remote env cache (e.g. env.S3Cache).
	Cache env.Cache
	// Trace enables the optional protocol trace sink.
	Trace TraceConfig

	Logger *log.Logger
}

func (c *Config) applyDefaults() {
	if c.InstallerBin == "" {
		c.InstallerBin = "npm"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
}

// Engine is a running host-child bridge: one child process, one socket,
// one dispatcher goroutine, one handle table.
type Engine struct {
	id  string
	cfg Config

	provisioner *env.Provisioner
	supervisor  *supervisor.Supervisor
	transport   *transport.Transport
	handles     *handleTable
	metrics     *metrics.Collector
	logger      *log.Logger
	trace       *traceSink

	requests chan *request
	messages chan transport.Message

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
}

// New constructs an Engine. Call Start to provision the env, spawn the
// child, and accept its connection.
func New(cfg Config) *Engine {
	cfg.applyDefaults()

	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		signature, _ := cfg.Manifest.Signature()
		logger = log.NewLogger(log.EngineMeta{EngineID: id, ManifestSignature: signature})
	}

	return &Engine{
		id:          id,
		cfg:         cfg,
		provisioner: env.New(env.Options{InstallerBin: cfg.InstallerBin, KeepLock: cfg.KeepLock, Candidates: cfg.EnvDirCandidates, Cache: cfg.Cache, Logger: logger}),
		handles:     newHandleTable(),
		logger:      logger,
		requests:    make(chan *request, cfg.QueueCapacity),
		stopCh:      make(chan struct{}),
	}
}

// ID returns the engine's uuid, also carried as the engine_id log field.
func (e *Engine) ID() string { return e.id }

// Metrics returns a snapshot of the engine's protocol counters, for the
// CLI's --tui live engine-state view and for callers that persist
// metrics alongside run output. Safe to call before Start (returns a
// zero Snapshot, since the collector is only constructed in Start).
func (e *Engine) Metrics() metrics.Snapshot {
	if e.metrics == nil {
		return metrics.Snapshot{}
	}
	return e.metrics.Snapshot()
}

// Start provisions the env directory, spawns the child, and waits for its
// inbound connection, then starts the dispatcher and reader goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return bridgeerr.ValueError("start", "engine already started")
	}
	e.started = true
	e.mu.Unlock()

	signature, err := e.cfg.Manifest.Signature()
	if err != nil {
		return bridgeerr.EngineStartError("start", fmt.Sprintf("signing manifest: %v", err))
	}
	e.metrics = metrics.NewCollector(e.id, signature)
	e.trace = newTraceSink(e.cfg.Trace, e.id, e.logger)

	dir, err := e.provisioner.EnsureEnvDir(ctx, e.cfg.Manifest, false)
	if err != nil {
		return err
	}

	tr, err := transport.Listen()
	if err != nil {
		return bridgeerr.EngineStartError("start", err.Error())
	}
	e.transport = tr

	e.supervisor = supervisor.New(supervisor.Config{
		InstallerBin: e.cfg.InstallerBin,
		Dir:          dir,
		Port:         tr.Port(),
		Debug:        e.cfg.Debug,
		Logger:       e.logger,
	})
	if err := e.supervisor.Start(ctx); err != nil {
		iox.DiscardClose(tr)
		return bridgeerr.EngineStartError("start", err.Error())
	}

	if err := tr.Accept(ctx, e.cfg.ConnectTimeout); err != nil {
		iox.DiscardClose(tr)
		_ = e.supervisor.Kill()
		return bridgeerr.EngineStartError("start", err.Error())
	}

	e.messages = make(chan transport.Message, e.cfg.QueueCapacity)
	go tr.ReadLoop(ctx, e.messages)

	d := newDispatcher(tr.Writer(), e.logger, e.metrics, e.trace)
	go d.run(e.requests, e.messages)

	e.logger.Info("engine started", map[string]any{"dir": dir, "port": tr.Port()})
	return nil
}

// Acquire is the scoped-acquisition form: it starts an engine and returns
// a stop function for use with defer, so callers don't need a separate
// Stop call on every exit path.
func Acquire(ctx context.Context, cfg Config) (*Engine, func(), error) {
	e := New(cfg)
	if err := e.Start(ctx); err != nil {
		return nil, nil, err
	}
	return e, func() { _ = e.Stop() }, nil
}

// Stop closes the connection and listener, waits for the child to exit,
// and releases every outstanding waiter with EngineClosedError. Stop is
// idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	close(e.stopCh)

	var err error
	if e.transport != nil {
		err = e.transport.Close()
	}
	if e.supervisor != nil {
		if _, waitErr := e.supervisor.Wait(); waitErr != nil && err == nil {
			err = waitErr
		}
	}
	e.trace.close()

	e.logger.Info("engine stopped", nil)
	return err
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

func (e *Engine) send(ctx context.Context, req *request) (types.Value, error) {
	if e.isStopped() {
		return types.Value{}, bridgeerr.EngineClosedError(string(req.op))
	}
	req.waiter = newWaiter()
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return types.Value{}, ctx.Err()
	case <-e.stopCh:
		return types.Value{}, bridgeerr.EngineClosedError(string(req.op))
	}
	return req.waiter.wait(ctx)
}

// enqueueFree is the GC-triggered cleanup invoked by runtime.AddCleanup
// once the last reachable reference to a *Pointer is collected. It never
// blocks the cleanup goroutine: a full queue is handed to a short-lived
// goroutine instead of stalling future cleanups.
func (e *Engine) enqueueFree(id int64) {
	e.handles.forget(id)
	if e.isStopped() {
		return
	}
	req := &request{op: types.ReqFree, pointerID: id}
	select {
	case e.requests <- req:
	default:
		go func() {
			select {
			case e.requests <- req:
			case <-e.stopCh:
			}
		}()
	}
}

// Eval sends source for the child to evaluate in global scope and
// materializes the result.
func (e *Engine) Eval(ctx context.Context, code string) (any, error) {
	v, err := e.send(ctx, &request{op: types.ReqEval, code: code})
	if err != nil {
		return nil, err
	}
	return e.Materialize(v)
}

// Await resolves a thenable pointer or proxy, returning ErrValue if it was
// never reported as awaitable.
func (e *Engine) Await(ctx context.Context, target any) (any, error) {
	ptr, err := resolvePointer(target)
	if err != nil {
		return nil, err
	}
	if !ptr.Awaitable() {
		return nil, bridgeerr.ValueError("await", "pointer is not awaitable")
	}
	v, err := e.send(ctx, &request{op: types.ReqAwait, pointerID: ptr.ID()})
	if err != nil {
		return nil, err
	}
	return e.Materialize(v)
}

// ImportFrom evaluates a dynamic import() of moduleName and awaits its
// settled promise, returning a proxy for the resolved module namespace
// object.
func (e *Engine) ImportFrom(ctx context.Context, moduleName string) (any, error) {
	quoted, err := json.Marshal(moduleName)
	if err != nil {
		return nil, bridgeerr.TypeError("import_from", err.Error())
	}
	v, err := e.send(ctx, &request{op: types.ReqEval, code: fmt.Sprintf("import(%s)", quoted)})
	if err != nil {
		return nil, err
	}
	materialized, err := e.Materialize(v)
	if err != nil {
		return nil, err
	}
	return e.Await(ctx, materialized)
}

// AsMapping wraps a pointer or proxy as a mapping proxy, accepting either
// form per test_proxy.py's union of Pointer and Proxy arguments.
func (e *Engine) AsMapping(target any) (*proxy.Mapping, error) {
	ptr, err := resolvePointer(target)
	if err != nil {
		return nil, err
	}
	return proxy.NewMapping(e, ptr), nil
}

func resolvePointer(target any) (proxy.PointerRef, error) {
	switch t := target.(type) {
	case interface{ Pointer() proxy.PointerRef }:
		return t.Pointer(), nil
	case proxy.PointerRef:
		return t, nil
	default:
		return nil, bridgeerr.ValueError("resolve_pointer", "expected a pointer or proxy")
	}
}

// Materialize converts a wire Value into a naive Go value or a proxy,
// selecting the array flavor when the child reported the pointer as
// iterable and the generic object flavor otherwise.
func (e *Engine) Materialize(v types.Value) (any, error) {
	switch v.Type {
	case types.EnvelopeNaive:
		if len(v.Data) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(v.Data, &out); err != nil {
			return nil, bridgeerr.TypeError("materialize", err.Error())
		}
		return out, nil
	case types.EnvelopePointer:
		ptr := e.handles.intern(e, v.ID, v.Awaitable, v.Iterable, v.Repr)
		if ptr.Iterable() {
			return proxy.NewArray(e, ptr), nil
		}
		return proxy.NewObject(e, ptr), nil
	default:
		return nil, bridgeerr.ProtocolErrorf("unknown envelope type %q", v.Type)
	}
}

func marshalArg(v any) (json.RawMessage, error) {
	if ptr, err := resolvePointer(v); err == nil {
		return json.Marshal(map[string]int64{"__pointer__": ptr.ID()})
	}
	return json.Marshal(v)
}

// --- proxy.Backend implementation ---

// GetAttr sends a get_attr request for name on ptr.
func (e *Engine) GetAttr(ctx context.Context, ptr proxy.PointerRef, name string) (types.Value, error) {
	return e.send(ctx, &request{op: types.ReqGetAttr, pointerID: ptr.ID(), name: name})
}

// SetAttr sends a set_attr request assigning value to name on ptr.
func (e *Engine) SetAttr(ctx context.Context, ptr proxy.PointerRef, name string, value any) error {
	data, err := marshalArg(value)
	if err != nil {
		return bridgeerr.TypeError("set_attr", err.Error())
	}
	_, err = e.send(ctx, &request{op: types.ReqSetAttr, pointerID: ptr.ID(), name: name, value: data})
	return err
}

// DelAttr sends a del_attr request for name on ptr.
func (e *Engine) DelAttr(ctx context.Context, ptr proxy.PointerRef, name string) error {
	_, err := e.send(ctx, &request{op: types.ReqDelAttr, pointerID: ptr.ID(), name: name})
	return err
}

// GetItem sends a get_item request for key on ptr.
func (e *Engine) GetItem(ctx context.Context, ptr proxy.PointerRef, key any) (types.Value, error) {
	data, err := marshalArg(key)
	if err != nil {
		return types.Value{}, bridgeerr.TypeError("get_item", err.Error())
	}
	return e.send(ctx, &request{op: types.ReqGetItem, pointerID: ptr.ID(), key: data})
}

// SetItem sends a set_item request assigning value to key on ptr.
func (e *Engine) SetItem(ctx context.Context, ptr proxy.PointerRef, key, value any) error {
	keyData, err := marshalArg(key)
	if err != nil {
		return bridgeerr.TypeError("set_item", err.Error())
	}
	valueData, err := marshalArg(value)
	if err != nil {
		return bridgeerr.TypeError("set_item", err.Error())
	}
	_, err = e.send(ctx, &request{op: types.ReqSetItem, pointerID: ptr.ID(), key: keyData, value: valueData})
	return err
}

// DelItem sends a del_item request for key on ptr.
func (e *Engine) DelItem(ctx context.Context, ptr proxy.PointerRef, key any) error {
	data, err := marshalArg(key)
	if err != nil {
		return bridgeerr.TypeError("del_item", err.Error())
	}
	_, err = e.send(ctx, &request{op: types.ReqDelItem, pointerID: ptr.ID(), key: data})
	return err
}

// Call invokes ptr as a function with args.
func (e *Engine) Call(ctx context.Context, ptr proxy.PointerRef, args []any) (types.Value, error) {
	argData := make([]json.RawMessage, len(args))
	for i, a := range args {
		data, err := marshalArg(a)
		if err != nil {
			return types.Value{}, bridgeerr.TypeError("call", err.Error())
		}
		argData[i] = data
	}
	return e.send(ctx, &request{op: types.ReqCall, pointerID: ptr.ID(), args: argData})
}

// CallMethod resolves name on ptr via get_attr, then calls the resulting
// pointer with args, preserving the `this` binding the child already
// attached when it built that pointer.
func (e *Engine) CallMethod(ctx context.Context, ptr proxy.PointerRef, name string, args []any) (types.Value, error) {
	attr, err := e.GetAttr(ctx, ptr, name)
	if err != nil {
		return types.Value{}, err
	}
	if attr.Type != types.EnvelopePointer {
		return types.Value{}, bridgeerr.TypeError("call_method", fmt.Sprintf("%q is not callable", name))
	}
	methodPtr := e.handles.intern(e, attr.ID, attr.Awaitable, attr.Iterable, attr.Repr)
	return e.Call(ctx, methodPtr, args)
}

// Length sends a length request for ptr.
func (e *Engine) Length(ctx context.Context, ptr proxy.PointerRef) (int, error) {
	v, err := e.send(ctx, &request{op: types.ReqLength, pointerID: ptr.ID()})
	if err != nil {
		return 0, err
	}
	return decodeInt(v)
}

// Keys sends a keys request for ptr.
func (e *Engine) Keys(ctx context.Context, ptr proxy.PointerRef) ([]string, error) {
	v, err := e.send(ctx, &request{op: types.ReqKeys, pointerID: ptr.ID()})
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal(v.Data, &keys); err != nil {
		return nil, bridgeerr.ProtocolErrorf("decode keys: %v", err)
	}
	return keys, nil
}

// Repr sends a repr request for ptr.
func (e *Engine) Repr(ctx context.Context, ptr proxy.PointerRef) (string, error) {
	v, err := e.send(ctx, &request{op: types.ReqRepr, pointerID: ptr.ID()})
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v.Data, &s); err != nil {
		return "", bridgeerr.ProtocolErrorf("decode repr: %v", err)
	}
	return s, nil
}

func decodeInt(v types.Value) (int, error) {
	var n float64
	if err := json.Unmarshal(v.Data, &n); err != nil {
		return 0, bridgeerr.ProtocolErrorf("decode length: %v", err)
	}
	return int(n), nil
}

var _ proxy.Backend = (*Engine)(nil)
