package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/star-sweep/pkg/search"
)

// JSONL writes one raw repository record per line.
type JSONL struct {
	w      *bufio.Writer
	closer io.Closer
	lines  int
}

// NewJSONL wraps w. The caller keeps ownership of w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: bufio.NewWriter(w)}
}

// CreateJSONL opens path for writing, truncating it. "-" writes to stdout.
func CreateJSONL(path string) (*JSONL, error) {
	if path == "-" {
		return NewJSONL(os.Stdout), nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	j := NewJSONL(f)
	j.closer = f
	return j, nil
}

// Write implements Sink.
func (j *JSONL) Write(ctx context.Context, items []search.Item) error {
	var buf bytes.Buffer
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf.Reset()
		if err := json.Compact(&buf, item.Data); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		buf.WriteByte('\n')
		if _, err := j.w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write item %s: %w", item.ID, err)
		}
		j.lines++
	}
	return nil
}

// Lines returns the number of records written.
func (j *JSONL) Lines() int {
	return j.lines
}

// Close implements Sink.
func (j *JSONL) Close() error {
	err := j.w.Flush()
	if j.closer != nil {
		if cerr := j.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
