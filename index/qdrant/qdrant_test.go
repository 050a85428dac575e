package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	id      string
	vector  []float32
	payload map[string]any
}

// fakeQdrant serves the subset of the Qdrant REST API the index uses.
type fakeQdrant struct {
	mu         sync.Mutex
	collection bool
	created    map[string]any
	points     []point
	apiKeys    []string
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

		path := strings.TrimPrefix(r.URL.Path, "/collections/test")
		switch {
		case path == "" && r.Method == http.MethodGet:
			if !f.collection {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, map[string]any{"result": map[string]any{}})
		case path == "" && r.Method == http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&f.created))
			f.collection = true
			writeJSON(w, map[string]any{"result": true})
		case path == "/points" && r.Method == http.MethodPut:
			var body struct {
				Batch struct {
					IDs      []string         `json:"ids"`
					Vectors  [][]float32      `json:"vectors"`
					Payloads []map[string]any `json:"payloads"`
				} `json:"batch"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			for i, id := range body.Batch.IDs {
				f.points = append(f.points, point{id: id, vector: body.Batch.Vectors[i], payload: body.Batch.Payloads[i]})
			}
			writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
		case path == "/points/search" && r.Method == http.MethodPost:
			var body struct {
				Vector []float32      `json:"vector"`
				Limit  int            `json:"limit"`
				Filter map[string]any `json:"filter"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			type hit struct {
				ID      string         `json:"id"`
				Score   float32        `json:"score"`
				Payload map[string]any `json:"payload"`
			}
			var hits []hit
			for _, p := range f.points {
				if !matches(body.Filter, p.payload) {
					continue
				}
				hits = append(hits, hit{ID: p.id, Score: core.DotProduct(body.Vector, p.vector), Payload: p.payload})
			}
			slices.SortFunc(hits, func(a, b hit) int {
				if a.Score > b.Score {
					return -1
				}
				if a.Score < b.Score {
					return 1
				}
				return strings.Compare(a.ID, b.ID)
			})
			if len(hits) > body.Limit {
				hits = hits[:body.Limit]
			}
			writeJSON(w, map[string]any{"result": hits})
		case path == "/points/delete" && r.Method == http.MethodPost:
			var body struct {
				Filter map[string]any `json:"filter"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.points = slices.DeleteFunc(f.points, func(p point) bool { return matches(body.Filter, p.payload) })
			writeJSON(w, map[string]any{"result": map[string]any{"status": "completed"}})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func matches(filter map[string]any, payload map[string]any) bool {
	must, _ := filter["must"].([]any)
	for _, c := range must {
		cond := c.(map[string]any)
		match := cond["match"].(map[string]any)
		if payload[cond["key"].(string)] != match["value"] {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestIndex(t *testing.T) (*Index, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	idx, err := New(Config{URL: srv.URL, APIKey: "secret", Collection: "test"}, mock.NewMockEmbedder())
	require.NoError(t, err)
	return idx, fake
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrURLRequired)

	_, err = New(Config{URL: "http://localhost:6333"}, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	idx, err := New(Config{URL: "http://localhost:6333"}, mock.NewMockEmbedder())
	require.NoError(t, err)
	assert.Equal(t, DefaultCollection, idx.collection)
}

func TestIndex_AddCreatesCollectionOnce(t *testing.T) {
	idx, fake := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []string{"first"}, []map[string]string{{core.MetaOwnerID: "alice"}})
	require.NoError(t, err)
	_, err = idx.Add(ctx, []string{"second"}, []map[string]string{{core.MetaOwnerID: "alice"}})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	vectors := fake.created["vectors"].(map[string]any)
	assert.EqualValues(t, mock.Dimensions, vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Len(t, fake.points, 2)
	assert.Equal(t, "first", fake.points[0].payload[contentKey])
	for _, key := range fake.apiKeys {
		assert.Equal(t, "secret", key)
	}
}

func TestIndex_QueryIsOwnerScoped(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	ids, err := idx.Add(ctx,
		[]string{"alice notes about cats", "bob notes about cats"},
		[]map[string]string{
			{core.MetaOwnerID: "alice", core.MetaFileID: "fa"},
			{core.MetaOwnerID: "bob", core.MetaFileID: "fb"},
		},
	)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	passages, err := idx.Query(ctx, "notes about cats", index.Filter{core.MetaOwnerID: "bob"}, 4)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "bob notes about cats", passages[0].Text)
	assert.Equal(t, "bob", passages[0].Metadata[core.MetaOwnerID])
	assert.Equal(t, "fb", passages[0].Metadata[core.MetaFileID])

	passages, err = idx.Query(ctx, "notes", index.Filter{core.MetaOwnerID: "carol"}, 4)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestIndex_Delete(t *testing.T) {
	idx, fake := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx,
		[]string{"one", "two"},
		[]map[string]string{
			{core.MetaOwnerID: "alice", core.MetaFileID: "f1"},
			{core.MetaOwnerID: "alice", core.MetaFileID: "f2"},
		},
	)
	require.NoError(t, err)

	require.NoError(t, idx.Delete(ctx, index.Filter{core.MetaFileID: "f1"}))
	fake.mu.Lock()
	assert.Len(t, fake.points, 1)
	fake.mu.Unlock()

	assert.ErrorIs(t, idx.Delete(ctx, nil), index.ErrEmptyFilter)
}

func TestIndex_EdgeCases(t *testing.T) {
	idx, fake := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Add(ctx, []string{"a"}, nil)
	assert.ErrorIs(t, err, index.ErrMetadataMismatch)

	ids, err := idx.Add(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)

	passages, err := idx.Query(ctx, "a", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, passages)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.False(t, fake.collection, "no request should reach qdrant")
}

func TestMustClause(t *testing.T) {
	clause := mustClause(index.Filter{core.MetaOwnerID: "alice"})
	assert.Equal(t, map[string]any{
		"must": []map[string]any{
			{"key": core.MetaOwnerID, "match": map[string]any{"value": "alice"}},
		},
	}, clause)
}
