package schema_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/ddbimport/pkg/batch/component/schema"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
)

const reviewSchema = `{
  "hash_key": "ProductId",
  "range_key": "ReviewDate",
  "mapping": {
    "ProductId": "product_id:S",
    "ReviewDate": "review_date",
    "Tags": "tags:L:S",
    "Scores": {"column": "scores", "type": "NS"},
    "ReviewDetails": {
      "Rating": "rating:N",
      "Verified": "verified:BOOL"
    },
    "Extra": {"type": "M", "fields": {"Note": "note:S"}}
  }
}`

func TestParse_NormalizesEveryShape(t *testing.T) {
	s, err := schema.Parse([]byte(reviewSchema))
	require.NoError(t, err)

	assert.Equal(t, "ProductId", s.HashKey)
	assert.Equal(t, "ReviewDate", s.RangeKey)
	require.Len(t, s.Fields, 6)

	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"ProductId", "ReviewDate", "Tags", "Scores", "ReviewDetails", "Extra"}, names, "document order is kept")

	assert.Equal(t, schema.Scalar("product_id", schema.TypeS), s.Fields[0].Spec)
	assert.Equal(t, schema.Scalar("review_date", schema.TypeS), s.Fields[1].Spec)
	assert.Equal(t, schema.List("tags", schema.TypeS), s.Fields[2].Spec)
	assert.Equal(t, schema.Scalar("scores", schema.TypeNS), s.Fields[3].Spec)

	details := s.Fields[4].Spec
	assert.Equal(t, schema.KindMap, details.Kind)
	assert.Equal(t, []string{"rating", "verified"}, details.Columns())

	extra := s.Fields[5].Spec
	assert.Equal(t, schema.Map(schema.Field{Name: "Note", Spec: schema.Scalar("note", schema.TypeS)}), extra)

	assert.NoError(t, s.Validate())
}

func TestParse_YAMLDocument(t *testing.T) {
	doc := `
hash_key: id
mapping:
  id: "id:N"
  flags: "flags:l:bool"
  payload: "payload:M"
`
	s, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, s.RangeKey)
	assert.Equal(t, schema.Scalar("id", schema.TypeN), s.Fields[0].Spec)
	assert.Equal(t, schema.List("flags", schema.TypeBOOL), s.Fields[1].Spec)
	assert.Equal(t, schema.Scalar("payload", schema.TypeM), s.Fields[2].Spec)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"not an object":   `["a"]`,
		"missing mapping": `{"hash_key": "id"}`,
		"mapping list":    `{"hash_key": "id", "mapping": ["id"]}`,
		"unknown tag":     `{"hash_key": "id", "mapping": {"id": "id:DATE"}}`,
		"bad list":        `{"hash_key": "id", "mapping": {"id": "id:S", "x": "x:L:M"}}`,
		"empty column":    `{"hash_key": "id", "mapping": {"id": ":S"}}`,
		"empty map":       `{"hash_key": "id", "mapping": {"id": "id", "m": {"type": "M", "fields": {}}}}`,
		"malformed":       `{"hash_key": `,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := schema.Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, exception.IsPrecondition(err))
			assert.True(t, errors.Is(err, exception.ErrInvalidSchema))
		})
	}
}

func TestParse_ReportsAllProblems(t *testing.T) {
	_, err := schema.Parse([]byte(`{"hash_key": "id", "mapping": {"a": "a:X", "b": "b:Y"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"X"`)
	assert.Contains(t, err.Error(), `"Y"`)
}

func TestValidate_KeyRules(t *testing.T) {
	cases := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"undeclared hash key", `{"hash_key": "Id", "mapping": {"Other": "o"}}`, `hash key "Id" is not defined`},
		{"nested range key", `{"hash_key": "Id", "range_key": "R", "mapping": {"Id": "id", "R": {"X": "x"}}}`, `range key "R" must map`},
		{"bool hash key", `{"hash_key": "Id", "mapping": {"Id": "id:BOOL"}}`, `hash key "Id" must map`},
		{"no hash key", `{"mapping": {"Id": "id"}}`, "hash key is not set"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := schema.Parse([]byte(tc.doc))
			require.NoError(t, err)
			err = s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.True(t, exception.IsPrecondition(err))
		})
	}
}

func TestValidate_LegacyNeedsOnlyHashKey(t *testing.T) {
	assert.NoError(t, schema.Legacy("id", "").Validate())
	assert.Error(t, schema.Legacy("", "").Validate())
}

func TestWithKeys_FillsOnlyMissing(t *testing.T) {
	s := &schema.Schema{HashKey: "A"}
	got := s.WithKeys("X", "B")
	assert.Equal(t, "A", got.HashKey)
	assert.Equal(t, "B", got.RangeKey)
	assert.Empty(t, s.RangeKey, "original is not modified")
}

func TestOverrideKeys_ReplacesWhenGiven(t *testing.T) {
	s := &schema.Schema{HashKey: "A", RangeKey: "B"}
	got := s.OverrideKeys("X", "")
	assert.Equal(t, "X", got.HashKey)
	assert.Equal(t, "B", got.RangeKey)
	assert.Equal(t, "A", s.HashKey)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(reviewSchema), 0o600))

	s, err := schema.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ProductId", s.HashKey)

	_, err = schema.Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.True(t, exception.IsPrecondition(err))
	assert.True(t, errors.Is(err, exception.ErrInvalidSchema))
}
