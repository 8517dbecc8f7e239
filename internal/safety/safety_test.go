package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOnlyRejectsMutations(t *testing.T) {
	cases := map[string]string{
		"delete from orders where id = 1":          "delete",
		"DELETE FROM orders":                       "delete",
		"with x as (select 1) DeLeTe from orders":  "delete",
		"update orders set a = 1":                  "update",
		"INSERT INTO t VALUES (1)":                 "insert",
		"drop table t":                             "drop",
		"create table t (a int)":                   "create",
		"alter table t add column b int":           "alter",
		"grant select on t to bob":                 "grant",
		"revoke select on t from bob":              "revoke",
		"select * from information_schema.columns": "information_schema",
	}
	for sql, operation := range cases {
		rejection := Check(sql, ReadOnly)
		require.NotNil(t, rejection, sql)
		assert.Equal(t, operation, rejection.Operation, sql)
		assert.Equal(t, ReadOnly, rejection.Mode)
		assert.NotEmpty(t, rejection.Error())
	}
}

func TestReadOnlyCheckOrderReportsInformationSchemaFirst(t *testing.T) {
	rejection := Check("delete from information_schema.tables", ReadOnly)
	require.NotNil(t, rejection)
	assert.Equal(t, "Access denied to information_schema.", rejection.Message)
}

func TestReadOnlyAllowsSelects(t *testing.T) {
	assert.Nil(t, Check("SELECT id, name FROM customers ORDER BY id LIMIT 10", ReadOnly))
	assert.Nil(t, Check("with totals as (select 1 as n) select n from totals", ReadOnly))
}

func TestReadOnlyOverBlocksKeywordLikeIdentifiers(t *testing.T) {
	// Known limitation of the textual gate.
	assert.NotNil(t, Check("select last_update from t where x = 'drop me'", ReadOnly))
}

func TestViewMutationAcceptsViewStatements(t *testing.T) {
	accepted := []string{
		"CREATE OR REPLACE VIEW analytics.revenue AS SELECT 1",
		"create view v as select * from t",
		"CREATE MATERIALIZED VIEW IF NOT EXISTS mv AS SELECT 1",
		"drop view if exists v",
		"DROP MATERIALIZED VIEW IF EXISTS mv",
	}
	for _, sql := range accepted {
		assert.Nil(t, Check(sql, ViewMutation), sql)
	}
}

func TestViewMutationRejectsOtherStatements(t *testing.T) {
	rejection := Check("SELECT * FROM t", ViewMutation)
	require.NotNil(t, rejection)
	assert.Equal(t, viewOnlyMessage, rejection.Message)

	rejection = Check("CREATE OR REPLACE VIEW v AS SELECT 1; DELETE FROM t", ViewMutation)
	require.NotNil(t, rejection)
	assert.Equal(t, "delete", rejection.Operation)

	rejection = Check("create view v as select 1; grant select on v to public", ViewMutation)
	require.NotNil(t, rejection)
	assert.Equal(t, "grant", rejection.Operation)
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, ReadOnly, ModeFor(false))
	assert.Equal(t, ViewMutation, ModeFor(true))
}
