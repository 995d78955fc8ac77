package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.TrailArchiver = (*Archiver)(nil)

// Archiver copies attempts and their event trails to object storage so the
// history outlives the primary store's retention.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit}
}

// Archive uploads one attempt as attempts/YYYY/MM/DD/<id>.json.
func (a *Archiver) Archive(ctx context.Context, attempt domain.TradeAttempt) error {
	raw, err := json.MarshalIndent(attempt, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal attempt %s: %w", attempt.ID, err)
	}
	path := attemptPath(attempt)
	if err := a.writer.Put(ctx, path, bytes.NewReader(raw), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// ExportDay writes every attempt started on day as one JSONL object and
// records the export in the audit log. It returns the number exported.
func (a *Archiver) ExportDay(ctx context.Context, day time.Time, attempts []domain.TradeAttempt) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var picked []domain.TradeAttempt
	for _, at := range attempts {
		ts := at.StartedAt.UTC()
		if !ts.Before(start) && ts.Before(end) {
			picked = append(picked, at)
		}
	}
	if len(picked) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(picked)
	if err != nil {
		return 0, fmt.Errorf("s3blob: export marshal: %w", err)
	}
	path := fmt.Sprintf("exports/attempts/%s.jsonl", start.Format("2006-01-02"))
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
		return 0, fmt.Errorf("s3blob: export upload: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.attempts", map[string]any{
			"path":  path,
			"count": len(picked),
			"day":   start.Format("2006-01-02"),
		}); err != nil {
			return len(picked), fmt.Errorf("s3blob: export audit log: %w", err)
		}
	}
	return len(picked), nil
}

func attemptPath(at domain.TradeAttempt) string {
	return fmt.Sprintf("attempts/%s/%s.json", at.StartedAt.UTC().Format("2006/01/02"), at.ID)
}

// marshalJSONL encodes one compact JSON record per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
