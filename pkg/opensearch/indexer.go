package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// DeliveryDocument is one delivery log as stored in the index. The document
// id is the delivery log id, so retries overwrite the previous state.
type DeliveryDocument struct {
	DeliveryLogID  string    `json:"delivery_log_id"`
	TenantID       string    `json:"tenant_id"`
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id,omitempty"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	Provider       string    `json:"provider,omitempty"`
	MessageID      string    `json:"provider_message_id,omitempty"`
	Error          string    `json:"error_message,omitempty"`
	Attempts       int       `json:"attempts"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Indexer writes delivery documents into a single index.
type Indexer struct {
	client *opensearch.Client
	index  string
}

func NewIndexer(client *opensearch.Client, index string) *Indexer {
	return &Indexer{client: client, index: index}
}

const deliveryMapping = `{
  "mappings": {
    "properties": {
      "delivery_log_id":     {"type": "keyword"},
      "tenant_id":           {"type": "keyword"},
      "notification_id":     {"type": "keyword"},
      "user_id":             {"type": "keyword"},
      "channel":             {"type": "keyword"},
      "status":              {"type": "keyword"},
      "provider":            {"type": "keyword"},
      "provider_message_id": {"type": "keyword"},
      "error_message":       {"type": "text"},
      "attempts":            {"type": "integer"},
      "updated_at":          {"type": "date"}
    }
  }
}`

// EnsureIndex creates the index with its mapping unless it exists.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := opensearchapi.IndicesCreateRequest{
		Index: i.index,
		Body:  strings.NewReader(deliveryMapping),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	return checkResponse(res)
}

// Index upserts doc.
func (i *Indexer) Index(ctx context.Context, doc DeliveryDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal delivery document: %w", err)
	}
	res, err := opensearchapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.DeliveryLogID,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	return checkResponse(res)
}

// SearchByTenant returns the newest documents of a tenant, optionally
// narrowed to one status.
func (i *Indexer) SearchByTenant(ctx context.Context, tenantID, status string, size int) ([]DeliveryDocument, error) {
	filters := []map[string]any{{"term": map[string]any{"tenant_id": tenantID}}}
	if status != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"status": status}})
	}
	query, err := json.Marshal(map[string]any{
		"size":  max(size, 1),
		"sort":  []map[string]any{{"updated_at": map[string]any{"order": "desc"}}},
		"query": map[string]any{"bool": map[string]any{"filter": filters}},
	})
	if err != nil {
		return nil, err
	}

	res, err := opensearchapi.SearchRequest{
		Index: []string{i.index},
		Body:  bytes.NewReader(query),
	}.Do(ctx, i.client)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError(res)
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source DeliveryDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	out := make([]DeliveryDocument, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

func checkResponse(res *opensearchapi.Response) error {
	defer res.Body.Close()
	if res.IsError() {
		return responseError(res)
	}
	return nil
}

func responseError(res *opensearchapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return errors.Join(ErrRequestFailed, fmt.Errorf("status %d: %s", res.StatusCode, bytes.TrimSpace(msg)))
}
