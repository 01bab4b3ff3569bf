// Package metrics provides per-engine metrics collection.
//
// The Collector accumulates counters for a single engine instance. It is a
// leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of an engine's counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	RequestsSent        int64
	ResultsReceived     int64
	JavaScriptErrors    int64
	ProtocolErrors      int64
	PointersAllocated   int64
	PointersFreed       int64
	PointersOutstanding int64

	EngineID          string
	ManifestSignature string
}

// Collector accumulates metrics during a single engine's lifetime.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe,
// so a caller holding a nil *Collector (metrics disabled) can call them
// unconditionally.
type Collector struct {
	mu sync.Mutex

	requestsSent      int64
	resultsReceived   int64
	javaScriptErrors  int64
	protocolErrors    int64
	pointersAllocated int64
	pointersFreed     int64

	engineID          string
	manifestSignature string
}

// NewCollector creates a Collector bound to the given engine identity.
func NewCollector(engineID, manifestSignature string) *Collector {
	return &Collector{engineID: engineID, manifestSignature: manifestSignature}
}

// IncRequestSent records a request written to the child.
func (c *Collector) IncRequestSent() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.requestsSent++
	c.mu.Unlock()
}

// IncResultReceived records a successful "<op>_result" response.
func (c *Collector) IncResultReceived() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resultsReceived++
	c.mu.Unlock()
}

// IncJavaScriptError records a "<op>_error" response forwarded from the child.
func (c *Collector) IncJavaScriptError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.javaScriptErrors++
	c.mu.Unlock()
}

// IncProtocolError records a read or frame decode failure, or a response
// payload that fails to decode.
func (c *Collector) IncProtocolError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.protocolErrors++
	c.mu.Unlock()
}

// IncPointerAllocated records a pointer envelope interned into the handle
// table.
func (c *Collector) IncPointerAllocated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pointersAllocated++
	c.mu.Unlock()
}

// IncPointerFreed records a "free" request written for a collected pointer.
func (c *Collector) IncPointerFreed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pointersFreed++
	c.mu.Unlock()
}

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RequestsSent:        c.requestsSent,
		ResultsReceived:     c.resultsReceived,
		JavaScriptErrors:    c.javaScriptErrors,
		ProtocolErrors:      c.protocolErrors,
		PointersAllocated:   c.pointersAllocated,
		PointersFreed:       c.pointersFreed,
		PointersOutstanding: c.pointersAllocated - c.pointersFreed,

		EngineID:          c.engineID,
		ManifestSignature: c.manifestSignature,
	}
}
