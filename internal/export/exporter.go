// Package export writes query results to object storage as Parquet.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/storage"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

const contentType = "application/vnd.apache.parquet"

type Result struct {
	Key       string `json:"key"`
	Size      int64  `json:"size_bytes"`
	RowCount  int64  `json:"row_count"`
	CellCount int64  `json:"cell_count"`
	Truncated bool   `json:"truncated"`
	URL       string `json:"url,omitempty"`
}

type Exporter struct {
	Store storage.ObjectStore
	// LinkExpiry sets the lifetime of download links when Store can presign.
	// Zero disables links.
	LinkExpiry time.Duration
}

func New(store storage.ObjectStore, linkExpiry time.Duration) *Exporter {
	return &Exporter{Store: store, LinkExpiry: linkExpiry}
}

func (e *Exporter) Export(ctx context.Context, key string, rs value.ResultSet) (Result, error) {
	if e == nil || e.Store == nil {
		return Result{}, fmt.Errorf("export store is not configured")
	}
	encoded, err := EncodeResultToParquet(rs)
	if err != nil {
		return Result{}, err
	}
	if _, err := e.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: contentType}); err != nil {
		return Result{}, fmt.Errorf("upload export: %w", err)
	}

	out := Result{
		Key:       key,
		Size:      int64(len(encoded.Data)),
		RowCount:  encoded.RowCount,
		CellCount: encoded.CellCount,
		Truncated: rs.Truncated,
	}
	if presigner, ok := e.Store.(storage.Presigner); ok && e.LinkExpiry > 0 {
		link, err := presigner.PresignGet(ctx, key, e.LinkExpiry)
		if err != nil {
			return Result{}, fmt.Errorf("presign export: %w", err)
		}
		out.URL = link
	}
	return out, nil
}
