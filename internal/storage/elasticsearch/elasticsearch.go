package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

const (
	defaultAddress    = "http://localhost:9200"
	defaultMaxRetries = 3
)

func init() {
	storage.Register("elasticsearch", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(cfg)
	})
}

// Sink writes documents to an Elasticsearch cluster through the bulk API.
//
// Index administration and bulk submission use separate clients: a bulk
// request that reached the cluster may already be indexed, so it is only
// retried when the cluster refused all of it (429) or the connection was
// never established.
type Sink struct {
	es   *es8.Client
	bulk *es8.Client
}

// New builds the clients. Index administration retries 429 and gateway
// errors with exponential backoff; bulk requests retry 429 and dial failures
// only. MaxRetries 0 means the default; a negative value disables retries.
func New(cfg storage.Config) (*Sink, error) {
	addrs := cfg.Addresses
	if len(addrs) == 0 {
		addrs = []string{defaultAddress}
	}

	base := es8.Config{
		Addresses:    addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		APIKey:       cfg.APIKey,
		RetryBackoff: retryDelay,
		MaxRetries:   defaultMaxRetries,
	}
	switch {
	case cfg.MaxRetries < 0:
		base.DisableRetry = true
	case cfg.MaxRetries > 0:
		base.MaxRetries = cfg.MaxRetries
	}

	adminCfg := base
	adminCfg.RetryOnStatus = []int{502, 503, 504, 429}
	admin, err := es8.NewClient(adminCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new client: %w", err)
	}

	bulkCfg := base
	bulkCfg.RetryOnStatus = []int{http.StatusTooManyRequests}
	bulkCfg.RetryOnError = retryBulkOnError
	bulk, err := es8.NewClient(bulkCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: new bulk client: %w", err)
	}
	return &Sink{es: admin, bulk: bulk}, nil
}

// retryDelay is the exponential backoff delay before retry number attempt
// (1-based). Each call builds its own backoff, so concurrent requests share
// no state.
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop {
		return b.MaxInterval
	}
	return d
}

// retryBulkOnError retries a bulk request only when no connection was made.
// Any later failure may have left the batch indexed.
func retryBulkOnError(_ *http.Request, err error) bool {
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

func (s *Sink) Close() {}

// RecreateIndex deletes spec.Name (a missing index is fine) and creates it
// with the spec's settings and mappings.
func (s *Sink) RecreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	res, err := s.es.Indices.Delete(
		[]string{spec.Name},
		s.es.Indices.Delete.WithContext(ctx),
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return storage.Unavailable("delete index "+spec.Name, err)
	}
	err = checkResponse(res, "delete index "+spec.Name, http.StatusNotFound)
	if err != nil {
		return err
	}

	res, err = s.es.Indices.Create(
		spec.Name,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(esutil.NewJSONReader(createBody(spec))),
	)
	if err != nil {
		return storage.Unavailable("create index "+spec.Name, err)
	}
	return checkResponse(res, "create index "+spec.Name)
}

func createBody(spec storage.IndexSpec) map[string]any {
	props := make(map[string]any, len(spec.Fields))
	for _, f := range spec.Fields {
		m := map[string]any{"type": f.Type}
		if f.Format != "" {
			m["format"] = f.Format
		}
		props[f.Name] = m
	}
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   spec.ShardCount(),
			"number_of_replicas": spec.Replicas,
		},
		"mappings": map[string]any{"properties": props},
	}
}

// SubmitBatch sends docs as one NDJSON bulk request and checks every item.
func (s *Sink) SubmitBatch(ctx context.Context, index string, docs []transformer.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	body, err := bulkBody(index, docs)
	if err != nil {
		return 0, err
	}

	res, err := s.bulk.Bulk(bytes.NewReader(body), s.bulk.Bulk.WithContext(ctx), s.bulk.Bulk.WithIndex(index))
	if err != nil {
		return 0, storage.Unavailable("bulk "+index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, bulkResponseError(res, "bulk "+index)
	}

	var br esutil.BulkIndexerResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return 0, fmt.Errorf("bulk %s: decode response: %w", index, err)
	}

	acked := 0
	var failed []storage.ItemFailure
	for i, item := range br.Items {
		for _, r := range item {
			if r.Status >= 200 && r.Status < 300 {
				acked++
				continue
			}
			failed = append(failed, storage.ItemFailure{
				Position: i,
				Status:   r.Status,
				Type:     r.Error.Type,
				Reason:   r.Error.Reason,
			})
		}
	}
	if len(failed) > 0 || acked != len(docs) {
		return acked, &storage.PartialFailureError{
			Index:        index,
			Submitted:    len(docs),
			Acknowledged: acked,
			Failed:       failed,
		}
	}
	return acked, nil
}

func bulkBody(index string, docs []transformer.Document) ([]byte, error) {
	meta, err := json.Marshal(map[string]any{"index": map[string]string{"_index": index}})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(docs) * 256)
	enc := json.NewEncoder(&buf) // Encode appends '\n'
	for i, d := range docs {
		buf.Write(meta)
		buf.WriteByte('\n')
		if err := enc.Encode(d); err != nil {
			return nil, fmt.Errorf("bulk %s: encode document %d: %w", index, i, err)
		}
	}
	return buf.Bytes(), nil
}

// checkResponse closes res and maps an error status to the storage error
// taxonomy. Statuses listed in ok are accepted.
func checkResponse(res *esapi.Response, op string, ok ...int) error {
	defer res.Body.Close()
	if !res.IsError() {
		return nil
	}
	for _, code := range ok {
		if res.StatusCode == code {
			return nil
		}
	}
	return responseError(res, op)
}

func responseError(res *esapi.Response, op string) error {
	err := statusError(res)
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return storage.Unavailable(op, err)
	}
	return storage.Rejected(op, err)
}

// bulkResponseError classifies a failed bulk request. Only index creation can
// reject a schema; any other refusal of the whole request (413, 400) is a
// plain submission error.
func bulkResponseError(res *esapi.Response, op string) error {
	err := statusError(res)
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		return storage.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func statusError(res *esapi.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var e struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	detail := string(bytes.TrimSpace(raw))
	if json.Unmarshal(raw, &e) == nil && e.Error.Type != "" {
		detail = e.Error.Type + ": " + e.Error.Reason
	}
	return fmt.Errorf("status=%d %s", res.StatusCode, detail)
}
