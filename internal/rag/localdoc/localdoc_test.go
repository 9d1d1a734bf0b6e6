package localdoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbacore/internal/llm"
)

type fakeProvider struct {
	reply string
}

func (p *fakeProvider) Chat(context.Context, []llm.Message, []llm.ToolSchema, string) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: p.reply}, nil
}
func (p *fakeProvider) ChatStream(context.Context, []llm.Message, []llm.ToolSchema, string, llm.StreamHandler) error {
	return nil
}

const pageJSON = `{"Blocks":[
	{"BlockType":"LINE","Text":"Chiropractic Benefits:"},
	{"BlockType":"LINE","Text":"Covered at $30 copay per visit."}
]}`

func TestOpenPrepareAndQueryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_0001.json"), []byte(pageJSON), 0o644))

	h, err := Open(context.Background(), dir, filepath.Join(t.TempDir(), "local.db"), 32, &fakeProvider{reply: "Chiropractic visits cost $30."}, "claude")
	require.NoError(t, err)
	defer h.Close()

	prep, err := h.Prepare(context.Background(), "", "local-docs", 1000, 200)
	require.NoError(t, err)
	assert.True(t, prep.Success)
	assert.Equal(t, 1, prep.DocCount)
	assert.Greater(t, prep.ChunksCount, 0)

	res, err := h.Query(context.Background(), "What does a chiropractic visit cost?", "local-docs", 3, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Chiropractic visits cost $30.", res.Answer)
	assert.NotEmpty(t, res.Sources)
}
