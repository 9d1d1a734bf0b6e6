// Package chunker implements the adaptive paragraph-accumulation chunking
// used by the RAG indexer: documents are split at blank-line boundaries into
// paragraphs, each paragraph is classified by content shape, and paragraphs
// are accumulated into a chunk until that shape's target size is reached.
package chunker

import (
	"regexp"
	"strings"
)

const (
	targetTableish = 600
	targetSparse   = 1500
	targetNormal   = 1000
)

// Chunk is one paragraph-aligned slice of a document, carrying enough of the
// source text for downstream metadata enrichment.
type Chunk struct {
	Index int
	Text  string
}

var (
	tablePipeRe  = regexp.MustCompile(`\|`)
	columnRunsRe = regexp.MustCompile(`\S {3,}\S`)
	cptLikeRe    = regexp.MustCompile(`\b\d{5}\b`)
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
)

// classify returns the target chunk size a paragraph's content shape implies.
func classify(paragraph string) int {
	if tablePipeRe.MatchString(paragraph) || columnRunsRe.MatchString(paragraph) || cptLikeRe.MatchString(paragraph) {
		return targetTableish
	}
	if len(strings.Fields(paragraph)) < 20 {
		return targetSparse
	}
	return targetNormal
}

// Split breaks text into paragraphs at blank-line boundaries, then
// accumulates paragraphs into chunks until each chunk's content-shape target
// is reached. Paragraph boundaries are never split mid-paragraph: a chunk may
// overshoot its target by the length of the paragraph that tipped it over.
// The target size is fixed by the first paragraph placed in the chunk.
//
// overlapParagraphs carries that many trailing paragraphs of a flushed chunk
// forward into the start of the next one; 0 disables overlap (see
// DESIGN.md's chunk_overlap decision).
func Split(text string, overlapParagraphs int) []Chunk {
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil
	}

	var out []Chunk
	var cur []string
	curLen := 0
	target := targetNormal

	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, Chunk{Index: len(out), Text: strings.Join(cur, "\n\n")})
	}

	for i, p := range paragraphs {
		if len(cur) == 0 {
			target = classify(p)
		}
		cur = append(cur, p)
		curLen += len(p)

		last := i == len(paragraphs)-1
		if curLen >= target || last {
			flush()
			if last {
				cur = nil
				continue
			}
			if overlapParagraphs > 0 && overlapParagraphs <= len(cur) {
				cur = append([]string{}, cur[len(cur)-overlapParagraphs:]...)
			} else {
				cur = nil
			}
			curLen = 0
			for _, c := range cur {
				curLen += len(c)
			}
		}
	}
	return out
}

func splitParagraphs(text string) []string {
	raw := blankLineRe.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
