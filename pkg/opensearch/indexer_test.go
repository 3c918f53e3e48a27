package opensearch_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	osgo "github.com/opensearch-project/opensearch-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/opensearch"
)

type fakeCluster struct {
	mu       sync.Mutex
	requests []string
	docs     map[string][]byte
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/":
		_, _ = io.WriteString(w, `{"version":{"number":"2.11.0","distribution":"opensearch"}}`)
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && !strings.Contains(r.URL.Path, "/_doc/"):
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.Contains(r.URL.Path, "/_doc/"):
		body, _ := io.ReadAll(r.Body)
		f.docs[r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]] = body
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		hits := make([]map[string]json.RawMessage, 0, len(f.docs))
		for _, d := range f.docs {
			hits = append(hits, map[string]json.RawMessage{"_source": d})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"hits": map[string]any{"hits": hits}})
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"unexpected"}`)
	}
}

func TestIndexer(t *testing.T) {
	t.Parallel()

	cluster := &fakeCluster{docs: map[string][]byte{}}
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := osgo.NewClient(osgo.Config{Addresses: []string{srv.URL}, DisableRetry: true})
	require.NoError(t, err)
	require.NoError(t, opensearch.Healthcheck(client)(context.Background()))

	idx := opensearch.NewIndexer(client, "deliveries")
	require.NoError(t, idx.EnsureIndex(context.Background()))

	doc := opensearch.DeliveryDocument{
		DeliveryLogID:  "log-1",
		TenantID:       "t1",
		NotificationID: "n1",
		Channel:        "EMAIL",
		Status:         "SENT",
		Provider:       "postmark",
		Attempts:       1,
		UpdatedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, idx.Index(context.Background(), doc))

	got, err := idx.SearchByTenant(context.Background(), "t1", "SENT", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, doc, got[0])

	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	assert.Contains(t, cluster.requests, "PUT /deliveries")
	assert.Contains(t, cluster.requests, "PUT /deliveries/_doc/log-1")
}
