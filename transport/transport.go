// Package transport implements the loopback listener and line reader: it
// accepts exactly one inbound connection from the child and turns the byte
// stream into a channel of decoded protocol envelopes.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nodeedge/nodeedge/ipc"
	"github.com/nodeedge/nodeedge/types"
)

// livenessPoll bounds how long a read blocks before checking ctx.Done(),
// per spec.md's "non-blocking I/O with a 1s liveness poll".
const livenessPoll = time.Second

// Message is what the reader hands off for each line read from the child.
// Exactly one of Envelope or Err is set.
type Message struct {
	Envelope *types.Envelope
	Err      error
}

// Transport owns the loopback listener and the single accepted connection.
type Transport struct {
	ln   net.Listener
	conn net.Conn
}

// Listen opens a loopback listener on IPv6 ::1 with an OS-assigned port.
func Listen() (*Transport, error) {
	ln, err := net.Listen("tcp", "[::1]:0")
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &Transport{ln: ln}, nil
}

// Port returns the assigned listener port.
func (t *Transport) Port() int {
	return t.ln.Addr().(*net.TCPAddr).Port
}

// Accept blocks for the single inbound connection the child is expected to
// make, or until ctx is canceled / timeout elapses.
func (t *Transport) Accept(ctx context.Context, timeout time.Duration) error {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := t.ln.Accept()
		ch <- result{conn, err}
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("transport: accept: %w", r.err)
		}
		t.conn = r.conn
		return nil
	case <-deadline:
		return fmt.Errorf("transport: timed out waiting for child connection")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Writer returns the connection's write side, owned exclusively by the
// dispatcher once accepted.
func (t *Transport) Writer() net.Conn { return t.conn }

// Close closes the accepted connection (if any) and the listener.
func (t *Transport) Close() error {
	var errs []error
	if t.conn != nil {
		if err := t.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.ln.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ReadLoop reads complete lines from the accepted connection, decodes each
// as a types.Envelope, and sends a Message on out for every line and every
// decode failure. It returns when the peer closes the connection, a read
// fails, or ctx is canceled, and closes out on return; it does not close
// the connection.
func (t *Transport) ReadLoop(ctx context.Context, out chan<- Message) {
	defer close(out)

	splitter := &ipc.LineSplitter{}
	buf := make([]byte, 64*1024)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if deadliner, ok := t.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = deadliner.SetReadDeadline(time.Now().Add(livenessPoll))
		}

		n, err := t.conn.Read(buf)
		if n > 0 {
			lines, feedErr := splitter.Feed(buf[:n])
			for _, line := range lines {
				out <- decodeLine(line)
			}
			if feedErr != nil {
				out <- Message{Err: feedErr}
				return
			}
		}

		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			out <- Message{Err: fmt.Errorf("transport: read: %w", err)}
			return
		}
	}
}

func decodeLine(line []byte) Message {
	var env types.Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Message{Err: &ipc.FrameError{Kind: ipc.KindDecode, Line: line, Err: err}}
	}
	return Message{Envelope: &env}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
