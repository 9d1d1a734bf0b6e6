package ingest

import (
	"regexp"
	"strings"
)

// Block is one detected element of a page-level document analysis blob:
// a LINE of recognized text, a TABLE region, or a FORM field.
type Block struct {
	BlockType string `json:"BlockType"`
	Text      string `json:"Text,omitempty"`
	ID        string `json:"Id,omitempty"`
	Page      int    `json:"Page,omitempty"`
}

type pageFile struct {
	Blocks []Block `json:"Blocks"`
}

var pageFileRe = regexp.MustCompile(`^page_(\d{4})\.json$`)

var skipFiles = map[string]bool{
	"manifest.json":    true,
	"metadata.json":    true,
	"consolidated.json": true,
}

// isPageFile reports whether key's base name matches the page_NNNN.json
// convention, and is not one of the well-known non-page manifests.
func isPageFile(key string) (pageNum int, ok bool) {
	base := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		base = key[i+1:]
	}
	if skipFiles[base] {
		return 0, false
	}
	m := pageFileRe.FindStringSubmatch(base)
	if m == nil {
		return 0, false
	}
	n := 0
	for _, c := range m[1] {
		n = n*10 + int(c-'0')
	}
	return n, true
}

// extractText concatenates LINE block texts in document order and marks
// each TABLE block with a placeholder token so table presence survives into
// the chunked text even though cell structure does not.
func extractText(blocks []Block) (text string, hasTables bool) {
	var sb strings.Builder
	for _, b := range blocks {
		switch b.BlockType {
		case "LINE":
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(b.Text)
		case "TABLE":
			hasTables = true
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("[TABLE: " + b.ID + "]")
		case "FORM":
			if strings.TrimSpace(b.Text) == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), hasTables
}
