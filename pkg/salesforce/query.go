package salesforce

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidIdentifier is returned when an object or field name is not a
// plain API name and cannot be placed in a SOQL statement.
var ErrInvalidIdentifier = eris.New("sf: invalid identifier")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is a bare API name such as Account or
// Budget__c.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !ValidIdentifier(n) {
			return eris.Wrapf(ErrInvalidIdentifier, "%q", n)
		}
	}
	return nil
}

// CurrentValues reads fields from the first objectType record whose matchField
// equals matchValue. It returns nil when no record matches. Object and field
// names must be bare API names; only matchValue is quoted.
func CurrentValues(ctx context.Context, c Client, objectType, matchField, matchValue string, fields []string) (map[string]any, error) {
	if err := checkIdentifiers(objectType, matchField); err != nil {
		return nil, err
	}
	if err := checkIdentifiers(fields...); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return map[string]any{}, nil
	}
	soql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = '%s' LIMIT 1",
		strings.Join(fields, ", "),
		objectType,
		matchField,
		escapeSoql(matchValue),
	)

	var records []map[string]any
	if err := c.Query(ctx, soql, &records); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: read %s where %s = %s", objectType, matchField, matchValue))
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.NewReplacer(`\`, `\\`, "'", `\'`).Replace(s)
}
