// Package credential holds the per-dialect connection parameters resolved
// from the secret store.
package credential

import (
	"encoding/json"
	"fmt"
	"strings"
)

const redacted = "[REDACTED]"

// Credential is implemented only by the structs in this package.
type Credential interface {
	// Family is the credential shape, e.g. Postgres for supabase sources.
	Family() Dialect
	Validate() error
	Redacted() Credential
	// Tunnel reports the SSH parameters when the source sits behind a jump host.
	Tunnel() (TunnelConfig, bool)
}

// SSH holds the optional jump host parameters. All three are set or none.
type SSH struct {
	JumpHost      string `json:"jump_host,omitempty" validate:"required_with=SSHUsername SSHPrivateKey"`
	SSHUsername   string `json:"ssh_username,omitempty" validate:"required_with=JumpHost SSHPrivateKey"`
	SSHPrivateKey string `json:"ssh_private_key,omitempty" validate:"required_with=JumpHost SSHUsername"`
}

// TunnelConfig is what the tunnel manager needs to reach Host:Port.
type TunnelConfig struct {
	JumpHost   string
	Username   string
	PrivateKey string
	TargetHost string
	TargetPort int
}

func (s SSH) enabled() bool {
	return s.JumpHost != "" || s.SSHUsername != "" || s.SSHPrivateKey != ""
}

func (s SSH) tunnel(host string, port int) (TunnelConfig, bool) {
	if !s.enabled() {
		return TunnelConfig{}, false
	}
	return TunnelConfig{
		JumpHost:   s.JumpHost,
		Username:   s.SSHUsername,
		PrivateKey: s.SSHPrivateKey,
		TargetHost: host,
		TargetPort: port,
	}, true
}

func (s SSH) redacted() SSH {
	if s.SSHPrivateKey != "" {
		s.SSHPrivateKey = redacted
	}
	return s
}

type PostgresCredential struct {
	Host     string   `json:"host" validate:"required"`
	Port     int      `json:"port" validate:"required,min=1,max=65535"`
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password"`
	Database string   `json:"database,omitempty"`
	Schemas  []string `json:"schemas,omitempty"`
	SSH
}

// UnmarshalJSON accepts dbname as an alias of database.
func (c *PostgresCredential) UnmarshalJSON(data []byte) error {
	type plain PostgresCredential
	var decoded struct {
		plain
		DBName string `json:"dbname"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = PostgresCredential(decoded.plain)
	if c.Database == "" {
		c.Database = decoded.DBName
	}
	return nil
}

func (c PostgresCredential) Family() Dialect { return Postgres }
func (c PostgresCredential) Validate() error { return validateStruct(c, c.SSH) }
func (c PostgresCredential) Tunnel() (TunnelConfig, bool) {
	return c.SSH.tunnel(c.Host, c.Port)
}

func (c PostgresCredential) Redacted() Credential {
	c.Password = redacted
	c.SSH = c.SSH.redacted()
	c.Schemas = append([]string(nil), c.Schemas...)
	return c
}

type MySQLCredential struct {
	Host      string   `json:"host" validate:"required"`
	Port      int      `json:"port" validate:"required,min=1,max=65535"`
	Username  string   `json:"username" validate:"required"`
	Password  string   `json:"password"`
	Databases []string `json:"schemas,omitempty"`
	SSH
}

func (c MySQLCredential) Family() Dialect { return MySQL }
func (c MySQLCredential) Validate() error { return validateStruct(c, c.SSH) }
func (c MySQLCredential) Tunnel() (TunnelConfig, bool) {
	return c.SSH.tunnel(c.Host, c.Port)
}

func (c MySQLCredential) Redacted() Credential {
	c.Password = redacted
	c.SSH = c.SSH.redacted()
	c.Databases = append([]string(nil), c.Databases...)
	return c
}

// DefaultDatabase is the first listed database, used as the session default.
func (c MySQLCredential) DefaultDatabase() string {
	if len(c.Databases) == 0 {
		return ""
	}
	return c.Databases[0]
}

type RedshiftCredential struct {
	Host     string   `json:"host" validate:"required"`
	Port     int      `json:"port" validate:"required,min=1,max=65535"`
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password"`
	Database string   `json:"database,omitempty"`
	Schemas  []string `json:"schemas,omitempty"`
}

func (c RedshiftCredential) Family() Dialect              { return Redshift }
func (c RedshiftCredential) Validate() error              { return validateStruct(c, SSH{}) }
func (c RedshiftCredential) Tunnel() (TunnelConfig, bool) { return TunnelConfig{}, false }

func (c RedshiftCredential) Redacted() Credential {
	c.Password = redacted
	c.Schemas = append([]string(nil), c.Schemas...)
	return c
}

type SQLServerCredential struct {
	Host     string   `json:"host" validate:"required"`
	Port     int      `json:"port" validate:"required,min=1,max=65535"`
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password"`
	Database string   `json:"database" validate:"required"`
	Schemas  []string `json:"schemas,omitempty"`
	SSH
}

func (c SQLServerCredential) Family() Dialect { return SQLServer }
func (c SQLServerCredential) Validate() error { return validateStruct(c, c.SSH) }
func (c SQLServerCredential) Tunnel() (TunnelConfig, bool) {
	return c.SSH.tunnel(c.Host, c.Port)
}

func (c SQLServerCredential) Redacted() Credential {
	c.Password = redacted
	c.SSH = c.SSH.redacted()
	c.Schemas = append([]string(nil), c.Schemas...)
	return c
}

type SnowflakeCredential struct {
	AccountID   string   `json:"account_id" validate:"required"`
	WarehouseID string   `json:"warehouse_id" validate:"required"`
	DatabaseID  string   `json:"database_id,omitempty"`
	Username    string   `json:"username" validate:"required"`
	Password    string   `json:"password" validate:"required"`
	Role        string   `json:"role,omitempty"`
	Schemas     []string `json:"schemas,omitempty"`
}

func (c SnowflakeCredential) Family() Dialect              { return Snowflake }
func (c SnowflakeCredential) Validate() error              { return validateStruct(c, SSH{}) }
func (c SnowflakeCredential) Tunnel() (TunnelConfig, bool) { return TunnelConfig{}, false }

func (c SnowflakeCredential) Redacted() Credential {
	c.Password = redacted
	c.Schemas = append([]string(nil), c.Schemas...)
	return c
}

type BigQueryCredential struct {
	CredentialsJSON json.RawMessage `json:"credentials_json" validate:"required"`
	ProjectID       string          `json:"project_id" validate:"required"`
	DatasetIDs      []string        `json:"dataset_ids,omitempty"`
}

func (c BigQueryCredential) Family() Dialect              { return BigQuery }
func (c BigQueryCredential) Tunnel() (TunnelConfig, bool) { return TunnelConfig{}, false }

func (c BigQueryCredential) Validate() error {
	if err := validateStruct(c, SSH{}); err != nil {
		return err
	}
	if !json.Valid(c.CredentialsJSON) {
		return &ConfigError{Field: "credentials_json", Reason: "must be a JSON document"}
	}
	return nil
}

func (c BigQueryCredential) Redacted() Credential {
	c.CredentialsJSON = json.RawMessage(`"` + redacted + `"`)
	c.DatasetIDs = append([]string(nil), c.DatasetIDs...)
	return c
}

type DatabricksCredential struct {
	Host        string   `json:"host" validate:"required"`
	APIKey      string   `json:"api_key" validate:"required"`
	WarehouseID string   `json:"warehouse_id" validate:"required"`
	CatalogName string   `json:"catalog_name"`
	Schemas     []string `json:"schemas,omitempty"`
}

func (c DatabricksCredential) Family() Dialect              { return Databricks }
func (c DatabricksCredential) Validate() error              { return validateStruct(c, SSH{}) }
func (c DatabricksCredential) Tunnel() (TunnelConfig, bool) { return TunnelConfig{}, false }

func (c DatabricksCredential) Redacted() Credential {
	c.APIKey = redacted
	c.Schemas = append([]string(nil), c.Schemas...)
	return c
}

// DuckDBCredential points at a database file readable by the API host.
type DuckDBCredential struct {
	Path    string   `json:"path" validate:"required"`
	Schemas []string `json:"schemas,omitempty"`
}

func (c DuckDBCredential) Family() Dialect              { return DuckDB }
func (c DuckDBCredential) Validate() error              { return validateStruct(c, SSH{}) }
func (c DuckDBCredential) Tunnel() (TunnelConfig, bool) { return TunnelConfig{}, false }
func (c DuckDBCredential) Redacted() Credential {
	c.Schemas = append([]string(nil), c.Schemas...)
	return c
}

// Decode parses a stored secret for dialect and validates it. The secret may
// carry a "type" discriminator; it must agree with dialect when present.
func Decode(dialect Dialect, raw []byte) (Credential, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("secret is not valid JSON: %v", err)}
	}
	if envelope.Type != "" {
		tagged, err := ParseDialect(envelope.Type)
		if err != nil {
			return nil, err
		}
		if tagged.family() != dialect.family() {
			return nil, &ConfigError{Field: "type", Reason: fmt.Sprintf("secret type %q does not match data source type %q", tagged, dialect)}
		}
	}

	var cred Credential
	var err error
	switch dialect.family() {
	case Postgres:
		cred, err = decodeAs[PostgresCredential](raw)
	case MySQL:
		cred, err = decodeAs[MySQLCredential](raw)
	case Redshift:
		cred, err = decodeAs[RedshiftCredential](raw)
	case SQLServer:
		cred, err = decodeAs[SQLServerCredential](raw)
	case Snowflake:
		cred, err = decodeAs[SnowflakeCredential](raw)
	case BigQuery:
		cred, err = decodeAs[BigQueryCredential](raw)
	case Databricks:
		cred, err = decodeAs[DatabricksCredential](raw)
	case DuckDB:
		cred, err = decodeAs[DuckDBCredential](raw)
	default:
		return nil, &ConfigError{Field: "type", Reason: fmt.Sprintf("unsupported data source type %q", dialect)}
	}
	if err != nil {
		return nil, err
	}
	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return cred, nil
}

// Encode serializes a credential with its type discriminator for storage.
func Encode(dialect Dialect, cred Credential) ([]byte, error) {
	if cred == nil {
		return nil, &ConfigError{Reason: "credential is required"}
	}
	if cred.Family() != dialect.family() {
		return nil, &ConfigError{Field: "type", Reason: fmt.Sprintf("credential for %q cannot back a %q data source", cred.Family(), dialect)}
	}
	body, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	fields["type"] = json.RawMessage(`"` + string(dialect) + `"`)
	return json.Marshal(fields)
}

func decodeAs[T Credential](raw []byte) (Credential, error) {
	var cred T
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, &ConfigError{Reason: strings.TrimPrefix(err.Error(), "json: ")}
	}
	return cred, nil
}
