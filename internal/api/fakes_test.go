package api

import (
	"context"
	"sync"
	"time"

	"github.com/jaysatani-27/buster-ai-sub003/internal/catalog"
	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/export"
	"github.com/jaysatani-27/buster-ai-sub003/internal/nl2sql"
	"github.com/jaysatani-27/buster-ai-sub003/internal/router"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

type modelingCall struct {
	DataSourceID string
	SQL          string
	UserID       string
}

type fakeRouter struct {
	mu            sync.Mutex
	result        value.ResultSet
	err           error
	testErr       error
	routed        []router.Request
	modeling      []modelingCall
	samples       []string
	tested        []credential.Dialect
	sampleResults map[string]value.ResultSet
}

func (f *fakeRouter) Route(_ context.Context, req router.Request) (value.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routed = append(f.routed, req)
	return f.result, f.err
}

func (f *fakeRouter) ModelingQueryEngine(_ context.Context, dataSourceID, sql, userID string) (value.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modeling = append(f.modeling, modelingCall{DataSourceID: dataSourceID, SQL: sql, UserID: userID})
	return f.result, f.err
}

func (f *fakeRouter) modelingCalls() []modelingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]modelingCall(nil), f.modeling...)
}

func (f *fakeRouter) SampleQuery(_ context.Context, _ string, sql string) (value.ResultSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sql)
	if rs, ok := f.sampleResults[sql]; ok {
		return rs, nil
	}
	return value.ResultSet{}, router.ErrDataSourceNotFound
}

func (f *fakeRouter) TestConnection(_ context.Context, dialect credential.Dialect, _ credential.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tested = append(f.tested, dialect)
	return f.testErr
}

type fakeDataSourceStore struct {
	sources map[string]catalog.DataSource
	secrets map[string][]byte
	created []catalog.CreateDataSourceInput
}

func newFakeDataSourceStore() *fakeDataSourceStore {
	return &fakeDataSourceStore{sources: map[string]catalog.DataSource{}, secrets: map[string][]byte{}}
}

func (f *fakeDataSourceStore) add(source catalog.DataSource, secret string) {
	f.sources[source.ID] = source
	f.secrets[source.ID] = []byte(secret)
}

func (f *fakeDataSourceStore) CreateDataSource(_ context.Context, in catalog.CreateDataSourceInput) (catalog.DataSource, error) {
	for _, existing := range f.sources {
		if existing.OrganizationID == in.OrganizationID && existing.Name == in.Name && existing.Env == in.Env {
			return catalog.DataSource{}, catalog.ErrAlreadyExists
		}
	}
	f.created = append(f.created, in)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	source := catalog.DataSource{
		ID:             "ds-new",
		Name:           in.Name,
		Type:           in.Type,
		SecretID:       "secret-new",
		OrganizationID: in.OrganizationID,
		Env:            in.Env,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	f.add(source, string(in.Secret))
	return source, nil
}

func (f *fakeDataSourceStore) ListDataSources(_ context.Context, organizationID string) ([]catalog.DataSource, error) {
	var out []catalog.DataSource
	for _, source := range f.sources {
		if source.OrganizationID == organizationID {
			out = append(out, source)
		}
	}
	return out, nil
}

func (f *fakeDataSourceStore) DeleteDataSource(_ context.Context, organizationID, dataSourceID string) (bool, error) {
	source, ok := f.sources[dataSourceID]
	if !ok || source.OrganizationID != organizationID {
		return false, nil
	}
	delete(f.sources, dataSourceID)
	return true, nil
}

func (f *fakeDataSourceStore) ResolveDataSource(_ context.Context, dataSourceID string) (catalog.DataSource, credential.Credential, error) {
	source, ok := f.sources[dataSourceID]
	if !ok {
		return catalog.DataSource{}, nil, catalog.ErrNotFound
	}
	cred, err := credential.Decode(source.Type, f.secrets[dataSourceID])
	if err != nil {
		return catalog.DataSource{}, nil, err
	}
	return source, cred, nil
}

type fakeExporter struct {
	keys []string
	err  error
}

func (f *fakeExporter) Export(_ context.Context, key string, rs value.ResultSet) (export.Result, error) {
	if f.err != nil {
		return export.Result{}, f.err
	}
	f.keys = append(f.keys, key)
	return export.Result{Key: key, Size: 128, RowCount: int64(rs.Len()), CellCount: int64(rs.Len() * len(rs.Columns)), URL: "https://exports.example/" + key}, nil
}

type fakeTranslator struct {
	requests []nl2sql.Request
	sql      string
	err      error
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{SQL: f.sql, Provider: "openai", Model: "gpt-4o"}, nil
}

type fakeTranspiler struct {
	out string
	err error
}

func (f *fakeTranspiler) Transpile(_ context.Context, _ string, _ credential.Dialect) (string, error) {
	return f.out, f.err
}

func salesResult() value.ResultSet {
	first := value.NewRow(2)
	first.Set("region", value.Text("EMEA"))
	first.Set("orders", value.Int8(12))
	second := value.NewRow(2)
	second.Set("region", value.Text("APAC"))
	second.Set("orders", value.NullOf(value.KindInt8))
	return value.ResultSet{Columns: []string{"region", "orders"}, Rows: []*value.Row{first, second}}
}

const postgresSecret = `{"host":"db.internal","port":5432,"username":"analyst","password":"pw","database":"warehouse"}`

func postgresSource(id, organizationID string) catalog.DataSource {
	return catalog.DataSource{
		ID:             id,
		Name:           "warehouse",
		Type:           credential.Postgres,
		SecretID:       "secret-" + id,
		OrganizationID: organizationID,
		Env:            "dev",
		CreatedBy:      "user-1",
	}
}
