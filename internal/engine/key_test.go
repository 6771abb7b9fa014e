package engine

import (
	"testing"

	"ClimFinLedger/internal/schema"

	"github.com/stretchr/testify/require"
)

func fieldsFrom(m map[schema.Column]string) KeyField {
	return func(c schema.Column) (string, bool) {
		v, ok := m[c]
		return v, ok
	}
}

func TestBuildKeyJoinsSegments(t *testing.T) {
	field := fieldsFrom(map[schema.Column]string{
		schema.ColYear:         "2020",
		schema.ColProviderCode: "1",
		schema.ColPurposeCode:  "23110",
	})
	key := BuildKey([]schema.Column{schema.ColYear, schema.ColProviderCode, schema.ColPurposeCode}, field)
	require.Equal(t, "2020_1_23110", key)
}

func TestBuildKeyCollapsesMissingTokens(t *testing.T) {
	field := fieldsFrom(map[schema.Column]string{
		schema.ColYear:         "2020",
		schema.ColProviderCode: "NaN",
		schema.ColPurposeCode:  " <NA> ",
	})
	key := BuildKey([]schema.Column{schema.ColYear, schema.ColProviderCode, schema.ColPurposeCode}, field)
	// Missing cells become empty segments; edge separators are trimmed away,
	// so a trailing run of missing tokens leaves no separator behind.
	require.Equal(t, "2020", key)
}

func TestBuildKeySkipsAbsentColumns(t *testing.T) {
	field := fieldsFrom(map[schema.Column]string{
		schema.ColYear:          "2020",
		schema.ColRecipientCode: "248",
	})
	key := BuildKey([]schema.Column{schema.ColYear, schema.ColCRSID, schema.ColRecipientCode}, field)
	require.Equal(t, "2020_248", key)
}

func TestBuildKeyDegenerateRow(t *testing.T) {
	field := fieldsFrom(map[schema.Column]string{
		schema.ColYear:         "",
		schema.ColProviderCode: "nan",
	})
	key := BuildKey([]schema.Column{schema.ColYear, schema.ColProviderCode}, field)
	require.Equal(t, "", key)
}

func TestKeyConfigValidate(t *testing.T) {
	require.Error(t, KeyConfig{Name: "empty"}.Validate())
	require.Error(t, KeyConfig{Name: "bad", Columns: []schema.Column{"no_such_column"}}.Validate())
	require.NoError(t, KeyConfig{Name: "ok", Columns: []schema.Column{schema.ColYear}}.Validate())
}
