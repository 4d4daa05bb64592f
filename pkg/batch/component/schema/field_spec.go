// Package schema loads declarative CSV-to-DynamoDB mappings and applies them
// to CSV rows.
//
// A schema document has a hash key, an optional range key and an ordered
// mapping from target attribute name to field spec. Field specs are written in
// one of several shapes:
//
//	"ProductId": "product_id:S"                       scalar, type defaults to S
//	"Tags": "tags:L:S"                                list of S elements
//	"Rating": {"column": "rating", "type": "N"}        scalar, object form
//	"ReviewDetails": {"Rating": "rating:N"}           nested map, object form
//	"ReviewDetails": {"type": "M", "fields": {...}}   nested map, explicit form
//
// Every shape is normalized into a FieldSpec when the document is loaded, so
// the mapper only ever sees three kinds of spec.
package schema

import (
	"fmt"
	"strings"
)

// TypeTag is a DynamoDB attribute type tag.
type TypeTag string

const (
	TypeS    TypeTag = "S"
	TypeN    TypeTag = "N"
	TypeBOOL TypeTag = "BOOL"
	TypeB    TypeTag = "B"
	TypeNULL TypeTag = "NULL"
	TypeSS   TypeTag = "SS"
	TypeNS   TypeTag = "NS"
	TypeBS   TypeTag = "BS"
	// TypeM as a scalar tag parses the cell as a JSON object.
	TypeM TypeTag = "M"
	// TypeL is only valid as the prefix of a list spec ("L:N").
	TypeL TypeTag = "L"
)

var scalarTags = map[TypeTag]bool{
	TypeS: true, TypeN: true, TypeBOOL: true, TypeB: true, TypeNULL: true,
	TypeSS: true, TypeNS: true, TypeBS: true, TypeM: true,
}

var elementTags = map[TypeTag]bool{
	TypeS: true, TypeN: true, TypeBOOL: true, TypeB: true,
}

// IsKeyType reports whether an attribute of this type may serve as a table key.
func (t TypeTag) IsKeyType() bool {
	return t == TypeS || t == TypeN || t == TypeB
}

// FieldKind discriminates the FieldSpec variants.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindList
	KindMap
)

// String returns the string representation of FieldKind.
func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// FieldSpec describes how one target attribute is produced.
//
//   - KindScalar: Column and Type are set.
//   - KindList: Column is set and Type is the element type.
//   - KindMap: Fields holds the nested specs in document order.
type FieldSpec struct {
	Kind   FieldKind
	Column string
	Type   TypeTag
	Fields []Field
}

// Field pairs a target attribute name with its spec.
type Field struct {
	Name string
	Spec FieldSpec
}

// Scalar returns a scalar FieldSpec.
func Scalar(column string, tag TypeTag) FieldSpec {
	return FieldSpec{Kind: KindScalar, Column: column, Type: tag}
}

// List returns a list FieldSpec.
func List(column string, element TypeTag) FieldSpec {
	return FieldSpec{Kind: KindList, Column: column, Type: element}
}

// Map returns a nested map FieldSpec.
func Map(fields ...Field) FieldSpec {
	return FieldSpec{Kind: KindMap, Fields: fields}
}

// Columns returns every source column referenced by the spec, depth first.
func (f FieldSpec) Columns() []string {
	if f.Kind != KindMap {
		return []string{f.Column}
	}
	var cols []string
	for _, child := range f.Fields {
		cols = append(cols, child.Spec.Columns()...)
	}
	return cols
}

// Schema is an immutable, normalized mapping document.
type Schema struct {
	HashKey  string
	RangeKey string
	Fields   []Field
	// Legacy schemas carry no mapping; every column becomes an S attribute.
	Legacy bool
}

// Legacy returns a schema that copies every column verbatim as an S attribute.
func Legacy(hashKey, rangeKey string) *Schema {
	return &Schema{HashKey: hashKey, RangeKey: rangeKey, Legacy: true}
}

// Field returns the top-level field named name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Spec, true
		}
	}
	return FieldSpec{}, false
}

// WithKeys returns a copy of s whose empty key names are filled in from
// hashKey and rangeKey.
func (s *Schema) WithKeys(hashKey, rangeKey string) *Schema {
	c := *s
	if c.HashKey == "" {
		c.HashKey = hashKey
	}
	if c.RangeKey == "" {
		c.RangeKey = rangeKey
	}
	return &c
}

// OverrideKeys returns a copy of s whose key names are replaced by the
// non-empty arguments.
func (s *Schema) OverrideKeys(hashKey, rangeKey string) *Schema {
	c := *s
	if hashKey != "" {
		c.HashKey = hashKey
	}
	if rangeKey != "" {
		c.RangeKey = rangeKey
	}
	return &c
}

// parseTypeExpr parses the part after the column name of "column:TYPE".
func parseTypeExpr(column, expr string) (FieldSpec, error) {
	expr = strings.ToUpper(strings.TrimSpace(expr))
	if expr == "" {
		return Scalar(column, TypeS), nil
	}
	if expr == string(TypeL) || strings.HasPrefix(expr, string(TypeL)+":") {
		element := TypeS
		if rest := strings.TrimPrefix(expr, string(TypeL)); rest != "" {
			element = TypeTag(strings.TrimPrefix(rest, ":"))
		}
		if !elementTags[element] {
			return FieldSpec{}, fmt.Errorf("column %q: unsupported list element type %q", column, element)
		}
		return List(column, element), nil
	}
	tag := TypeTag(expr)
	if !scalarTags[tag] {
		return FieldSpec{}, fmt.Errorf("column %q: unknown type %q", column, expr)
	}
	return Scalar(column, tag), nil
}

// parseMappingString parses the "column[:TYPE]" shorthand.
func parseMappingString(value string) (FieldSpec, error) {
	column, expr, _ := strings.Cut(value, ":")
	if column == "" {
		return FieldSpec{}, fmt.Errorf("mapping %q has no source column", value)
	}
	return parseTypeExpr(column, expr)
}
