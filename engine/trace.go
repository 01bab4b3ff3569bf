package engine

import (
	"context"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/nodeedge/nodeedge/log"
	"github.com/nodeedge/nodeedge/types"
)

// TraceConfig enables the optional protocol trace sink. Root is the base
// directory for filesystem-backed Hive storage; an empty Root disables
// tracing even if Enabled is true, since there is nowhere to write to.
type TraceConfig struct {
	Enabled bool
	Root    string
}

// traceEvent is one row of the protocol trace dataset, partitioned by
// engine and day.
type traceEvent struct {
	Engine    string `json:"engine"`
	Day       string `json:"day"`
	Direction string `json:"direction"` // "out" (host request) or "in" (child message)
	Type      string `json:"type"`
	EventID   string `json:"event_id,omitempty"`
}

// traceSink writes a fire-and-forget copy of every request/response
// envelope to a lode dataset, Hive-partitioned by engine id and day —
// the same dataset-construction shape as the teacher's LodeClient
// (NewDataset + WithHiveLayout + WithCodec over an FS-backed store
// factory), repurposed from run-event ingestion to protocol diagnostics.
// It never sits on a request's critical path: writes are buffered and
// flushed periodically by a background goroutine, and a full buffer drops
// the event rather than blocking the dispatcher.
type traceSink struct {
	dataset  lode.Dataset
	engineID string
	events   chan traceEvent
	logger   *log.Logger
}

// newTraceSink returns nil when tracing is disabled or unconfigured, so
// callers can treat a disabled trace sink identically to a present but
// inert one via the nil-receiver methods below.
func newTraceSink(cfg TraceConfig, engineID string, logger *log.Logger) *traceSink {
	if !cfg.Enabled || cfg.Root == "" {
		return nil
	}

	ds, err := lode.NewDataset(
		lode.DatasetID("protocol-trace"),
		lode.NewFSFactory(cfg.Root),
		lode.WithHiveLayout("engine", "day"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		if logger != nil {
			logger.Warn("trace sink disabled: dataset construction failed", map[string]any{"error": err.Error()})
		}
		return nil
	}

	s := &traceSink{
		dataset:  ds,
		engineID: engineID,
		events:   make(chan traceEvent, 256),
		logger:   logger,
	}
	go s.run()
	return s
}

func (s *traceSink) run() {
	const flushInterval = time.Second
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []any
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := s.dataset.Write(ctx, batch, lode.Metadata{}); err != nil && s.logger != nil {
			s.logger.Warn("trace write failed", map[string]any{"error": err.Error(), "count": len(batch)})
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, toRecord(ev))
		case <-ticker.C:
			flush()
		}
	}
}

func toRecord(ev traceEvent) map[string]any {
	return map[string]any{
		"engine":    ev.Engine,
		"day":       ev.Day,
		"direction": ev.Direction,
		"type":      ev.Type,
		"event_id":  ev.EventID,
	}
}

// record enqueues ev for the next flush. A nil *traceSink (disabled
// trace, the common case) makes this a no-op, matching the
// metrics.Collector nil-receiver-safe pattern.
func (s *traceSink) record(direction string, env types.Envelope) {
	if s == nil {
		return
	}
	ev := traceEvent{
		Engine:    s.engineID,
		Day:       time.Now().UTC().Format("2006-01-02"),
		Direction: direction,
		Type:      env.Type,
		EventID:   env.EventID,
	}
	select {
	case s.events <- ev:
	default:
		if s.logger != nil {
			s.logger.Warn("trace buffer full, dropping event", map[string]any{"type": env.Type})
		}
	}
}

// close stops the background flush goroutine after draining the buffer.
func (s *traceSink) close() {
	if s == nil {
		return
	}
	close(s.events)
}
