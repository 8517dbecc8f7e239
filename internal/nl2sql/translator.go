package nl2sql

import (
	"context"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
)

// DatasetContext describes one dataset the model may query. SampleRows hold
// plain JSON scalars in column order.
type DatasetContext struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"sample_rows"`
}

type Request struct {
	OrganizationID  string             `json:"organization_id"`
	NaturalLanguage string             `json:"natural_language"`
	Dialect         credential.Dialect `json:"dialect"`
	Datasets        []DatasetContext   `json:"datasets"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
