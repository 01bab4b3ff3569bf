package ipc

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteLine marshals v and writes it to w followed by a single "\n". The
// dispatcher is the only caller of this function; it serializes all writes
// by construction (single goroutine, single owner of w).
func WriteLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ipc: marshal: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("ipc: write: %w", err)
	}
	return nil
}
