package mysql

import (
	"testing"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

func TestConfigEscapesCredentialsInDSN(t *testing.T) {
	cred := credential.MySQLCredential{
		Host:      "mysql.internal",
		Port:      3306,
		Username:  "report@svc",
		Password:  "p@ss/w:rd?",
		Databases: []string{"shop", "crm"},
	}
	cfg, err := Config(cred, 0)
	require.NoError(t, err)

	parsed, err := driver.ParseDSN(cfg.FormatDSN())
	require.NoError(t, err)
	assert.Equal(t, "report@svc", parsed.User)
	assert.Equal(t, "p@ss/w:rd?", parsed.Passwd)
	assert.Equal(t, "mysql.internal:3306", parsed.Addr)
	assert.Equal(t, "shop", parsed.DBName)
	assert.Equal(t, 5*time.Second, parsed.Timeout)
	assert.False(t, parsed.ParseTime)
}

func TestConfigUsesTunnelPort(t *testing.T) {
	cred := credential.MySQLCredential{Host: "10.1.1.1", Port: 3306, Username: "u"}
	cfg, err := Config(cred, 45000)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:45000", cfg.Addr)
}

func TestConfigRejectsForeignCredential(t *testing.T) {
	_, err := Config(credential.PostgresCredential{}, 0)
	require.Error(t, err)
}

func TestKindOfAndConvert(t *testing.T) {
	assert.Equal(t, value.KindInt4, KindOf("int"))
	assert.Equal(t, value.KindDecimal, KindOf("UNSIGNED BIGINT"))
	assert.Equal(t, value.KindTimestamp, KindOf("DATETIME"))
	assert.Equal(t, value.KindUnknown, KindOf("GEOMETRY"))

	assert.True(t, convert(value.KindBool, []byte{1}).Equal(value.Bool(true)))
	assert.True(t, convert(value.KindBool, []byte{0}).Equal(value.Bool(false)))
	assert.True(t, convert(value.KindTimestamp, []byte("0000-00-00 00:00:00")).IsNull())

	ts := convert(value.KindTimestamp, []byte("2024-05-06 07:08:09.123"))
	want := value.Timestamp(time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC))
	assert.True(t, ts.Equal(want), ts.String())
}
