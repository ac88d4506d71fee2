package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/voicekit/midtier-go/tool"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		Endpoint:        srv.URL,
		Index:           "kb",
		APIKey:          "search-key",
		APIVersion:      defaultAPIVersion,
		IdentifierField: "chunk_id",
		ContentField:    "chunk",
		TitleField:      "title",
		Top:             5,
		HTTPClient:      srv.Client(),
		Logger:          slog.Default(),
	}
	return &client{cfg: cfg, http: cfg.HTTPClient, log: cfg.Logger}, srv
}

func TestSearchFormatsResults(t *testing.T) {
	var gotBody []byte
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "search-key", r.Header.Get("api-key"))
		assert.Equal(t, "/indexes/kb/docs/search", r.URL.Path)
		gotBody, _ = io.ReadAll(r.Body)

		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"chunk_id": "doc1", "chunk": "password reset steps"},
				{"chunk_id": "doc2", "chunk": "error code f means failed login"},
			},
		})
	})

	res, err := c.search(context.Background(), map[string]any{"query": "error code f"})
	require.NoError(t, err)

	assert.Equal(t, tool.ToServer, res.Destination)
	assert.Equal(t, "[doc1]: password reset steps\n-----\n[doc2]: error code f means failed login\n-----\n", res.Text)

	body := gjson.ParseBytes(gotBody)
	assert.Equal(t, "error code f", body.Get("search").String())
	assert.Equal(t, int64(5), body.Get("top").Int())
}

func TestSearchErrorPropagates(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusForbidden)
	})

	_, err := c.search(context.Background(), map[string]any{"query": "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestReportGroundingReturnsSourcesToClient(t *testing.T) {
	var gotBody []byte
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"chunk_id": "doc1", "title": "Login errors", "chunk": "error code f"},
			},
		})
	})

	res, err := c.reportGrounding(context.Background(), map[string]any{
		"sources": []any{"doc1"},
	})
	require.NoError(t, err)

	assert.Equal(t, tool.ToClient, res.Destination)
	payload := gjson.Parse(res.Text)
	sources := payload.Get("sources").Array()
	require.Len(t, sources, 1)
	assert.Equal(t, "doc1", sources[0].Get("chunk_id").String())
	assert.Equal(t, "Login errors", sources[0].Get("title").String())

	filter := gjson.GetBytes(gotBody, "filter").String()
	assert.Equal(t, "search.in(chunk_id, 'doc1')", filter)
}

func TestReportGroundingEmptySources(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty sources")
	})

	res, err := c.reportGrounding(context.Background(), map[string]any{"sources": []any{}})
	require.NoError(t, err)
	assert.Equal(t, tool.ToClient, res.Destination)
	assert.JSONEq(t, `{"sources": []}`, res.Text)
}
