package snowflake

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

func TestLimitStatement(t *testing.T) {
	assert.Equal(t, "SELECT * FROM orders FETCH FIRST 5001 ROWS ONLY", LimitStatement("SELECT * FROM orders;", 5000))
	assert.Equal(t, "select * from orders limit 10", LimitStatement("select * from orders limit 10", 5000))
}

func TestConfigFromCredential(t *testing.T) {
	cred := credential.SnowflakeCredential{
		AccountID:   "xy12345.us-east-1",
		WarehouseID: "COMPUTE_WH",
		DatabaseID:  "ANALYTICS",
		Username:    "buster",
		Password:    "p@ss word",
		Role:        "REPORTER",
		Schemas:     []string{"PUBLIC"},
	}
	cfg, err := Config(cred)
	require.NoError(t, err)
	assert.Equal(t, "xy12345.us-east-1", cfg.Account)
	assert.Equal(t, "COMPUTE_WH", cfg.Warehouse)
	assert.Equal(t, "PUBLIC", cfg.Schema)
	assert.Equal(t, 5*time.Second, cfg.LoginTimeout)

	dsn, err := DSN(cred)
	require.NoError(t, err)
	assert.Contains(t, dsn, "warehouse=COMPUTE_WH")
	assert.NotContains(t, dsn, "p@ss word")

	_, err = Config(credential.MySQLCredential{})
	require.Error(t, err)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, value.KindInt8, KindOf("FIXED", 0))
	assert.Equal(t, value.KindDecimal, KindOf("FIXED", 2))
	assert.Equal(t, value.KindTimestamp, KindOf("timestamp_ntz", 0))
	assert.Equal(t, value.KindTimestamptz, KindOf("TIMESTAMP_TZ", 0))
	assert.Equal(t, value.KindJSON, KindOf("VARIANT", 0))
	assert.Equal(t, value.KindUnknown, KindOf("GEOGRAPHY", 0))
}

func TestExecuteLowercasesColumnsAndPushesLimit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("ORDER_ID").OfType("FIXED", "").WithPrecisionAndScale(38, 0),
		sqlmock.NewColumn("AMOUNT").OfType("FIXED", "").WithPrecisionAndScale(12, 2),
		sqlmock.NewColumn("Region").OfType("TEXT", ""),
	).AddRow("17", "99.50", "EMEA").AddRow("18", "1.25", "AMER")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ORDER_ID, AMOUNT, Region FROM ORDERS FETCH FIRST 2 ROWS ONLY")).WillReturnRows(rows)

	result, err := newConn(db).Execute(context.Background(), "SELECT ORDER_ID, AMOUNT, Region FROM ORDERS", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "amount", "region"}, result.Columns)
	require.Equal(t, 1, result.Len())
	assert.True(t, result.Truncated)

	id, _ := result.Rows[0].Get("order_id")
	assert.True(t, id.Equal(value.Int8(17)))
	amount, _ := result.Rows[0].Get("amount")
	assert.Equal(t, value.KindDecimal, amount.Kind())
	region, _ := result.Rows[0].Get("region")
	assert.True(t, region.Equal(value.Text("EMEA")), "string values keep their case")
	require.NoError(t, mock.ExpectationsWereMet())
}
