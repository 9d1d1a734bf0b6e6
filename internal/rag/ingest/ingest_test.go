package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbacore/internal/mbaerrors"
	"mbacore/internal/objectstore"
	"mbacore/internal/persistence/databases"
	"mbacore/internal/rag/embedder"
)

type fakeObject struct {
	body string
}

// fakeStore is an in-memory ObjectStore keyed by full path, enough to drive
// discoverPages/loadDocuments without touching S3.
type fakeStore struct {
	objects map[string]fakeObject
}

func (f *fakeStore) Get(_ context.Context, key string) (io.ReadCloser, objectstore.ObjectAttrs, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, objectstore.ObjectAttrs{}, objectstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewBufferString(obj.body)), objectstore.ObjectAttrs{Key: key}, nil
}

func (f *fakeStore) Put(context.Context, string, io.Reader, objectstore.PutOptions) (string, error) {
	return "", nil
}
func (f *fakeStore) Delete(context.Context, string) error { return nil }

func (f *fakeStore) List(_ context.Context, opts objectstore.ListOptions) (objectstore.ListResult, error) {
	seen := map[string]bool{}
	var res objectstore.ListResult
	for key := range f.objects {
		if len(key) < len(opts.Prefix) || key[:len(opts.Prefix)] != opts.Prefix {
			continue
		}
		rest := key[len(opts.Prefix):]
		if opts.Delimiter != "" {
			if idx := indexOf(rest, opts.Delimiter); idx >= 0 {
				sub := opts.Prefix + rest[:idx+1]
				if !seen[sub] {
					seen[sub] = true
					res.CommonPrefixes = append(res.CommonPrefixes, sub)
				}
				continue
			}
		}
		res.Objects = append(res.Objects, objectstore.ObjectAttrs{Key: key})
	}
	return res, nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (f *fakeStore) Head(context.Context, string) (objectstore.ObjectAttrs, error) {
	return objectstore.ObjectAttrs{}, nil
}
func (f *fakeStore) Copy(context.Context, string, string) error { return nil }
func (f *fakeStore) Exists(context.Context, string) (bool, error) {
	return false, nil
}

type fakeBuckets struct {
	store *fakeStore
}

func (b fakeBuckets) Bucket(string) objectstore.ObjectStore { return b.store }

// fakeVectorStore records every upsert in memory.
type fakeVectorStore struct {
	dim     int
	upserts map[string][]float32
}

func (v *fakeVectorStore) Upsert(_ context.Context, id string, vector []float32, _ map[string]any) error {
	v.upserts[id] = vector
	return nil
}
func (v *fakeVectorStore) Delete(context.Context, string) error { return nil }
func (v *fakeVectorStore) SimilaritySearch(context.Context, []float32, int, map[string]any) ([]databases.VectorResult, error) {
	return nil, nil
}
func (v *fakeVectorStore) Dimension() int { return v.dim }

func pageJSON(lines ...string) string {
	var blocks []Block
	for _, l := range lines {
		blocks = append(blocks, Block{BlockType: "LINE", Text: l})
	}
	b, _ := json.Marshal(pageFile{Blocks: blocks})
	return string(b)
}

func TestDiscoverPagesDirectPrefix(t *testing.T) {
	store := &fakeStore{objects: map[string]fakeObject{
		"docs/page_0001.json": {body: pageJSON("Deductible Overview")},
		"docs/manifest.json":  {body: "{}"},
	}}
	pages, err := discoverPages(context.Background(), store, "docs/")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].pageNum)
}

func TestDiscoverPagesDescendsIntoJobIDSubdir(t *testing.T) {
	store := &fakeStore{objects: map[string]fakeObject{
		"docs/job-123/page_0001.json": {body: pageJSON("Line one")},
	}}
	pages, err := discoverPages(context.Background(), store, "docs/")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "docs/job-123/page_0001.json", pages[0].key)
}

func TestDiscoverPagesNoneFoundFailsTyped(t *testing.T) {
	store := &fakeStore{objects: map[string]fakeObject{}}
	_, err := discoverPages(context.Background(), store, "docs/")
	assert.ErrorIs(t, err, mbaerrors.ErrNoPageFiles)
}

func TestPointIDIsDeterministic(t *testing.T) {
	a := pointID("same content")
	b := pointID("same content")
	c := pointID("different content")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestExtractTextMarksTablesAndPreservesOrder(t *testing.T) {
	blocks := []Block{
		{BlockType: "LINE", Text: "Plan Overview"},
		{BlockType: "TABLE", ID: "tbl-1"},
		{BlockType: "LINE", Text: "Deductible: $500"},
	}
	text, hasTables := extractText(blocks)
	assert.True(t, hasTables)
	assert.Contains(t, text, "Plan Overview")
	assert.Contains(t, text, "[TABLE: tbl-1]")
	assert.Contains(t, text, "Deductible: $500")
}

func TestPrepareEndToEndEmbedsAndUpserts(t *testing.T) {
	dim := 64
	store := &fakeStore{objects: map[string]fakeObject{
		"docs/page_0001.json": {body: pageJSON(
			"Chiropractic Benefits:",
			"Covered at $30 copay per visit. CPT 97140 applies to manual therapy.",
		)},
	}}
	vec := &fakeVectorStore{dim: dim, upserts: map[string][]float32{}}

	ix := NewIndexer(fakeBuckets{store: store}, embedder.NewDeterministic(dim, true, 1),
		func(context.Context, string) (databases.VectorStore, error) { return vec, nil })

	res, err := ix.Prepare(context.Background(), "bucket", "docs/", "benefits-index", 1000, 200)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.DocCount)
	assert.Equal(t, len(vec.upserts), res.ChunksCount)
	assert.Equal(t, "benefits-index", res.IndexName)
}

func TestPrepareDimensionMismatchFailsFast(t *testing.T) {
	store := &fakeStore{objects: map[string]fakeObject{
		"docs/page_0001.json": {body: pageJSON("Some benefit text here for testing purposes.")},
	}}
	vec := &fakeVectorStore{dim: 999, upserts: map[string][]float32{}}
	ix := NewIndexer(fakeBuckets{store: store}, embedder.NewDeterministic(64, true, 1),
		func(context.Context, string) (databases.VectorStore, error) { return vec, nil })

	_, err := ix.Prepare(context.Background(), "bucket", "docs/", "benefits-index", 1000, 200)
	assert.ErrorIs(t, err, mbaerrors.ErrDimensionMismatch)
}

func TestEnrichDetectsSectionTitleAndCostInfo(t *testing.T) {
	meta := enrich("Chiropractic Benefits:\nCovered at $30 copay. CPT 97140 applies.")
	assert.Equal(t, "Chiropractic Benefits", meta.SectionTitle)
	assert.True(t, meta.HasCostInfo)
	assert.Equal(t, "therapy", meta.BenefitCategory)
	assert.Contains(t, meta.CPTCodes, "97140")
}
