package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildExportPath lays exports out by organization, data source and UTC day:
// <org>/<data source>/exports/date=YYYY-MM-DD/<query id>.parquet
func BuildExportPath(organizationID, dataSourceID, queryID string, at time.Time) (string, error) {
	for _, c := range []struct{ value, field string }{
		{organizationID, "organization id"},
		{dataSourceID, "data source id"},
		{queryID, "query id"},
	} {
		if err := validatePathComponent(c.value, c.field); err != nil {
			return "", err
		}
	}
	day := at.UTC()
	return path.Join(
		organizationID,
		dataSourceID,
		"exports",
		fmt.Sprintf("date=%04d-%02d-%02d", day.Year(), day.Month(), day.Day()),
		queryID+".parquet",
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// IsExportPath reports whether key has the layout BuildExportPath produces.
func IsExportPath(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != 5 || parts[2] != "exports" {
		return false
	}
	if !strings.HasPrefix(parts[3], "date=") || !strings.HasSuffix(parts[4], ".parquet") {
		return false
	}
	return pathComponentPattern.MatchString(parts[0]) && pathComponentPattern.MatchString(parts[1])
}
