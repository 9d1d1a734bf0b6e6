package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapturePutGetAllAndClear(t *testing.T) {
	c := NewCapture()
	c.Put("analyze_query", "a")
	c.Put("route_to_agent", "b")

	all := c.GetAll()
	assert.Equal(t, "a", all["analyze_query"])
	assert.Equal(t, "b", all["route_to_agent"])

	c.Clear()
	_, ok := c.Get("analyze_query")
	assert.False(t, ok)
	assert.Empty(t, c.GetAll())
}

func TestCaptureGetMissingKeyReturnsFalse(t *testing.T) {
	c := NewCapture()
	_, ok := c.Get("nope")
	assert.False(t, ok)
}
