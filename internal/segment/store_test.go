package segment

import (
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/flapjack/internal/document"
	"github.com/cuemby/flapjack/internal/settings"
	"github.com/cuemby/flapjack/internal/types"
)

func TestOpenCreatesAndReopens(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tenant1")
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
}

func TestUpsertAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tenant1")
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	seg := document.Convert(types.Document{
		ObjectID: "obj-1",
		Fields: map[string]types.FieldValue{
			"title": types.Text("hello world"),
		},
	}, settings.Default())

	b := s.NewBatch()
	require.NoError(t, b.Upsert(seg))
	require.NoError(t, s.Commit(b))

	req := bleve.NewSearchRequest(bleve.NewMatchQuery("hello"))
	res, err := s.Index().Search(req)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(res.Hits), 1)
}

func TestClearRemovesAllDocs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tenant1")
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	seg := document.Convert(types.Document{
		ObjectID: "obj-1",
		Fields:   map[string]types.FieldValue{"title": types.Text("x")},
	}, settings.Default())
	b := s.NewBatch()
	require.NoError(t, b.Upsert(seg))
	require.NoError(t, s.Commit(b))

	require.NoError(t, s.Clear())
	count, err := s.Index().DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}
