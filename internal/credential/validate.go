package credential

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/ssh"
)

// ConfigError reports a credential that cannot be used to connect.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "invalid credential: " + e.Reason
	}
	return fmt.Sprintf("invalid credential %s: %s", e.Field, e.Reason)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateStruct(cred any, tunnel SSH) error {
	if err := validate.Struct(cred); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return &ConfigError{Reason: err.Error()}
	}
	return validateSSH(tunnel)
}

func fieldError(fe validator.FieldError) *ConfigError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ConfigError{Field: field, Reason: "is required"}
	case "required_with":
		return &ConfigError{Field: field, Reason: "jump_host, ssh_username and ssh_private_key must be set together"}
	case "min", "max":
		return &ConfigError{Field: field, Reason: fmt.Sprintf("must be between 1 and 65535, got %v", fe.Value())}
	default:
		return &ConfigError{Field: field, Reason: fmt.Sprintf("failed %s check", fe.Tag())}
	}
}

// validateSSH also rejects private keys that are not PEM/OpenSSH encoded.
// An encrypted key is accepted here and fails later at the ssh client.
func validateSSH(s SSH) error {
	if !s.enabled() {
		return nil
	}
	if s.JumpHost == "" || s.SSHUsername == "" || s.SSHPrivateKey == "" {
		return &ConfigError{Field: "jump_host", Reason: "jump_host, ssh_username and ssh_private_key must be set together"}
	}
	if _, err := ssh.ParseRawPrivateKey([]byte(s.SSHPrivateKey)); err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil
		}
		return &ConfigError{Field: "ssh_private_key", Reason: "is not a valid private key"}
	}
	return nil
}
