package handlers

import (
	"context"
	"fmt"
)

// fakeRelational is an in-memory RelationalAdapter stand-in for the handler
// tests; it ignores the sql text and returns whatever rows were queued for
// the current call index.
type fakeRelational struct {
	calls int
	rows  [][]map[string]any
	err   error
}

func (f *fakeRelational) Execute(_ context.Context, _ string, _ ...any) ([]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.rows) {
		return nil, fmt.Errorf("fakeRelational: no queued rows for call %d", f.calls)
	}
	out := f.rows[f.calls]
	f.calls++
	return out, nil
}

func (f *fakeRelational) Close() {}
