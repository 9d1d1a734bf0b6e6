package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func paragraph(words int) string {
	fields := make([]string, words)
	for i := range fields {
		fields[i] = "word"
	}
	return strings.Join(fields, " ")
}

func TestSplitTableishParagraphTargetsSixHundred(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		b.WriteString(fmt.Sprintf("Deductible IND PPO | %05d | amount   here\n\n", 10000+i))
	}
	chunks := Split(b.String(), 0)
	assert.NotEmpty(t, chunks)
	for _, c := range chunks[:len(chunks)-1] {
		assert.GreaterOrEqual(t, len(c.Text), targetTableish)
	}
}

func TestSplitSparseParagraphTargetsFifteenHundred(t *testing.T) {
	text := paragraph(5) + "\n\n" + paragraph(5) + "\n\n" + paragraph(5)
	chunks := Split(text, 0)
	assert.Len(t, chunks, 1, "sparse paragraphs under the 1500-char target stay in one chunk")
}

func TestSplitNeverSplitsMidParagraph(t *testing.T) {
	text := paragraph(400) + "\n\n" + paragraph(400) + "\n\n" + paragraph(400)
	chunks := Split(text, 0)
	for _, c := range chunks {
		for _, para := range strings.Split(c.Text, "\n\n") {
			assert.True(t, strings.HasPrefix(para, "word"))
		}
	}
}

func TestSplitOverlapCarriesTrailingParagraphsForward(t *testing.T) {
	text := paragraph(200) + "\n\n" + paragraph(200) + "\n\n" + paragraph(200) + "\n\n" + paragraph(200)
	chunks := Split(text, 1)
	assert.Greater(t, len(chunks), 1)
	lastParaOfFirst := lastParagraph(chunks[0].Text)
	assert.True(t, strings.HasPrefix(chunks[1].Text, lastParaOfFirst))
}

func TestSplitEmptyInputProducesNoChunks(t *testing.T) {
	assert.Empty(t, Split("", 0))
	assert.Empty(t, Split("   \n\n  ", 0))
}

func lastParagraph(chunk string) string {
	parts := strings.Split(chunk, "\n\n")
	return parts[len(parts)-1]
}
