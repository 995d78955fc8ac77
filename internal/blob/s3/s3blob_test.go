package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
)

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemBlob() *memBlob {
	return &memBlob{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlob) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = raw
	m.types[path] = contentType
	return nil
}

func (m *memBlob) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func attempt(id string, at time.Time) domain.TradeAttempt {
	return domain.TradeAttempt{
		ID:        id,
		Purpose:   domain.PurposeOpen,
		Direction: domain.DirectionShortALongB,
		Amount:    decimal.RequireFromString("0.1"),
		SymbolA:   "ETH_USDC",
		SymbolB:   "ETH",
		Outcome:   domain.TradeOutcome{Kind: domain.OutcomeBothFilled},
		StartedAt: at,
	}
}

func TestArchiveWritesOneObjectPerAttempt(t *testing.T) {
	blob := newMemBlob()
	a := NewArchiver(blob, nil)
	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	require.NoError(t, a.Archive(context.Background(), attempt("att-1", at)))

	raw, ok := blob.objects["attempts/2026/10/19/att-1.json"]
	require.True(t, ok)
	assert.Equal(t, "application/json", blob.types["attempts/2026/10/19/att-1.json"])

	var got domain.TradeAttempt
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "att-1", got.ID)
	assert.Equal(t, domain.OutcomeBothFilled, got.Outcome.Kind)
}

func TestExportDayFiltersAndAudits(t *testing.T) {
	blob := newMemBlob()
	audit := memory.NewAuditStore()
	a := NewArchiver(blob, audit)
	day := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	n, err := a.ExportDay(context.Background(), day, []domain.TradeAttempt{
		attempt("before", day.Add(-time.Minute)),
		attempt("in-1", day.Add(time.Hour)),
		attempt("in-2", day.Add(23*time.Hour)),
		attempt("after", day.Add(24*time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	raw := blob.objects["exports/attempts/2026-10-18.jsonl"]
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"in-1"`)

	entries, err := audit.List(context.Background(), domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.attempts", entries[0].Event)
}

func TestExportDayEmpty(t *testing.T) {
	blob := newMemBlob()
	n, err := NewArchiver(blob, nil).ExportDay(context.Background(), time.Now(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.objects)
}

func TestWriterPutUsesPrefixedPathStyleKey(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "hedge",
		AccessKey:      "AKID",
		SecretKey:      "SECRET",
		ForcePathStyle: true,
		Prefix:         "/bot1/",
	})
	require.NoError(t, err)

	err = NewWriter(c).Put(context.Background(), "attempts/x.json", bytes.NewReader([]byte(`{}`)), "application/json")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/hedge/bot1/attempts/x.json", path)
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://minio.local", normaliseEndpoint("minio.local", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
