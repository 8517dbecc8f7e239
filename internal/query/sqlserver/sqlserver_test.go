package sqlserver

import (
	"net/url"
	"testing"

	"github.com/cockroachdb/apd/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaysatani-27/buster-ai-sub003/internal/credential"
	"github.com/jaysatani-27/buster-ai-sub003/internal/value"
)

func TestDSNEscapesCredentials(t *testing.T) {
	cred := credential.SQLServerCredential{
		Host:     "mssql.internal",
		Port:     1433,
		Username: "sa",
		Password: "Str0ng;P@ss=word&",
		Database: "Sales DB",
	}
	dsn, err := DSN(cred, 0)
	require.NoError(t, err)

	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	password, _ := parsed.User.Password()
	assert.Equal(t, "Str0ng;P@ss=word&", password)
	assert.Equal(t, "mssql.internal:1433", parsed.Host)
	assert.Equal(t, "Sales DB", parsed.Query().Get("database"))
	assert.Equal(t, "5", parsed.Query().Get("dial timeout"))
}

func TestDSNUsesTunnelPort(t *testing.T) {
	cred := credential.SQLServerCredential{Host: "10.2.2.2", Port: 1433, Username: "sa", Database: "db"}
	dsn, err := DSN(cred, 41234)
	require.NoError(t, err)
	parsed, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:41234", parsed.Host)
}

func TestConvertUniqueIdentifierByteOrder(t *testing.T) {
	wire := []byte{0x10, 0xb8, 0xa7, 0x6b, 0xad, 0x9d, 0xd1, 0x11, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8}
	got := convert(value.KindUUID, wire)
	want := value.UUID(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	assert.True(t, got.Equal(want), got.String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, value.KindTimestamptz, KindOf("DATETIMEOFFSET"))
	assert.Equal(t, value.KindDecimal, KindOf("MONEY"))
	assert.Equal(t, value.KindBool, KindOf("bit"))
	assert.Equal(t, value.KindUnknown, KindOf("SQL_VARIANT"))

	money := convert(value.KindDecimal, []byte("1234.5600"))
	assert.True(t, money.Equal(value.Decimal(apd.New(123456, -2))), money.String())
}
