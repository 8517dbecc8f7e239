// Package safety is a textual pre-execution gate for SQL sent to customer
// warehouses.
//
// It matches keywords against the upper-cased statement and does not parse
// SQL. Identifiers such as update_count are over-blocked, and obfuscated
// statements (comments between keywords, unusual whitespace) can slip past
// it. Treat it as defense in depth, never as a permission boundary.
package safety

import "strings"

type Mode string

const (
	ReadOnly     Mode = "read_only"
	ViewMutation Mode = "view_mutation"
)

// Rejection is the user-presentable reason a statement was refused.
type Rejection struct {
	Mode      Mode
	Operation string
	Message   string
}

func (r *Rejection) Error() string {
	return r.Message
}

type rule struct {
	keyword   string
	operation string
	message   string
}

var readOnlyRules = []rule{
	{"INFORMATION_SCHEMA", "information_schema", "Access denied to information_schema."},
	{"UPDATE ", "update", "I'm not allowed to update the database. Please try another request."},
	{"DELETE ", "delete", "I'm not allowed to delete from the database. Please try another request."},
	{"INSERT ", "insert", "I'm not allowed to insert into the database. Please try another request."},
	{"DROP ", "drop", "I'm not allowed to drop tables in the database. Please try another request."},
	{"CREATE ", "create", "I'm not allowed to create tables in the database. Please try another request."},
	{"ALTER ", "alter", "I'm not allowed to alter tables in the database. Please try another request."},
	{"GRANT ", "grant", "I'm not allowed to grant permissions in the database. Please try another request."},
	{"REVOKE ", "revoke", "I'm not allowed to revoke permissions in the database. Please try another request."},
}

var viewStatements = []string{
	"CREATE VIEW",
	"CREATE MATERIALIZED VIEW",
	"DROP VIEW IF EXISTS",
	"DROP MATERIALIZED VIEW IF EXISTS",
	"CREATE OR REPLACE VIEW",
	"CREATE MATERIALIZED VIEW IF NOT EXISTS",
}

const viewOnlyMessage = "I'm only allowed to create, replace, or drop views or materialized views. Please try another request."

var viewMutationRules = []rule{
	{"DELETE ", "delete", "I'm not allowed to delete from the database. Please try another request."},
	{"INSERT ", "insert", "I'm not allowed to insert into the database. Please try another request."},
	{"ALTER ", "alter", "I'm not allowed to alter tables in the database. Please try another request."},
	{"GRANT ", "grant", "I'm not allowed to grant permissions in the database. Please try another request."},
	{"REVOKE ", "revoke", "I'm not allowed to revoke permissions in the database. Please try another request."},
}

// Check returns nil when sql is allowed under mode.
func Check(sql string, mode Mode) *Rejection {
	upper := strings.ToUpper(sql)
	switch mode {
	case ViewMutation:
		if !containsAny(upper, viewStatements) {
			return &Rejection{Mode: mode, Operation: "non_view_statement", Message: viewOnlyMessage}
		}
		return firstMatch(upper, mode, viewMutationRules)
	default:
		return firstMatch(upper, ReadOnly, readOnlyRules)
	}
}

// ModeFor picks the policy for a read or write request.
func ModeFor(write bool) Mode {
	if write {
		return ViewMutation
	}
	return ReadOnly
}

func firstMatch(upper string, mode Mode, rules []rule) *Rejection {
	for _, r := range rules {
		if strings.Contains(upper, r.keyword) {
			return &Rejection{Mode: mode, Operation: r.operation, Message: r.message}
		}
	}
	return nil
}

func containsAny(upper string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(upper, needle) {
			return true
		}
	}
	return false
}
