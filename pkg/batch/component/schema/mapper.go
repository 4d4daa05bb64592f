package schema

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tigerroll/ddbimport/pkg/batch/core/application/port"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
)

const byteOrderMark = "\ufeff"

// DefaultListDelimiter separates the elements of list and set cells.
const DefaultListDelimiter = ","

var numberPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ErrRowRejected is matched by every RejectionError.
var ErrRowRejected = errors.New("row rejected")

// RejectionError reports a row that cannot be submitted because a key
// attribute is missing after mapping.
type RejectionError struct {
	Line   int
	Reason string
}

// Error returns the rejection reason with the data row number.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("row %d rejected: %s", e.Line, e.Reason)
}

// Is matches ErrRowRejected.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRowRejected
}

// Record is one mapped item, ready for a PutRequest.
type Record map[string]types.AttributeValue

// KeyString renders the key attributes of r for log lines, e.g.
// "ProductId=P1, ReviewDate=2024-01-01".
func (r Record) KeyString(hashKey, rangeKey string) string {
	parts := []string{hashKey + "=" + scalarText(r[hashKey])}
	if rangeKey != "" {
		parts = append(parts, rangeKey+"="+scalarText(r[rangeKey]))
	}
	return strings.Join(parts, ", ")
}

// ToJSON renders r as a plain JSON object.
func (r Record) ToJSON() ([]byte, error) {
	var plain map[string]interface{}
	if err := attributevalue.UnmarshalMap(r, &plain); err != nil {
		return nil, err
	}
	return json.MarshalIndent(plain, "", "  ")
}

func scalarText(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return base64.StdEncoding.EncodeToString(v.Value)
	case nil:
		return "<missing>"
	}
	return fmt.Sprintf("%T", av)
}

// Mapper converts rows into Records according to a Schema. It is safe for
// concurrent use.
type Mapper struct {
	schema    *Schema
	delimiter string
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithListDelimiter sets the separator for list and set cells.
func WithListDelimiter(delimiter string) MapperOption {
	return func(m *Mapper) {
		if delimiter != "" {
			m.delimiter = delimiter
		}
	}
}

// NewMapper creates a Mapper for s.
//
// Parameters:
//
//	s: A validated schema.
//	opts: Options such as the list delimiter.
//
// Returns:
//
//	A new [Mapper] instance.
func NewMapper(s *Schema, opts ...MapperOption) *Mapper {
	m := &Mapper{schema: s, delimiter: DefaultListDelimiter}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schema returns the schema the mapper applies.
func (m *Mapper) Schema() *Schema {
	return m.schema
}

// Map converts row into a Record. Attributes whose source is absent, empty or
// not coercible are omitted.
//
// Parameters:
//
//	row: The CSV row, with values looked up by column name.
//
// Returns:
//
//	The mapped [Record], or a *RejectionError when a key attribute is
//	missing after mapping.
func (m *Mapper) Map(row model.Row) (Record, error) {
	var record Record
	if m.schema.Legacy {
		record = m.mapLegacy(row)
	} else {
		record = m.mapFields(row, m.schema.Fields)
	}
	if err := m.checkKey(record, m.schema.HashKey, "hash", row.Line); err != nil {
		return nil, err
	}
	if m.schema.RangeKey != "" {
		if err := m.checkKey(record, m.schema.RangeKey, "range", row.Line); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// Process implements port.ItemProcessor.
func (m *Mapper) Process(ctx context.Context, row model.Row) (Record, error) {
	return m.Map(row)
}

var _ port.ItemProcessor[model.Row, Record] = (*Mapper)(nil)

func (m *Mapper) mapLegacy(row model.Row) Record {
	record := make(Record, len(row.Header))
	for _, column := range row.Header {
		if value, ok := row.Values[column]; ok {
			record[strings.TrimPrefix(column, byteOrderMark)] = &types.AttributeValueMemberS{Value: value}
		}
	}
	return record
}

func (m *Mapper) checkKey(record Record, name, role string, line int) error {
	switch v := record[name].(type) {
	case *types.AttributeValueMemberS:
		if v.Value != "" {
			return nil
		}
	case *types.AttributeValueMemberN:
		if v.Value != "" {
			return nil
		}
	case *types.AttributeValueMemberB:
		if len(v.Value) > 0 {
			return nil
		}
	case nil:
		return &RejectionError{Line: line, Reason: fmt.Sprintf("missing %s key attribute %q", role, name)}
	}
	return &RejectionError{Line: line, Reason: fmt.Sprintf("%s key attribute %q is empty or not a key type", role, name)}
}

func (m *Mapper) mapFields(row model.Row, fields []Field) Record {
	record := make(Record, len(fields))
	for _, f := range fields {
		if av, ok := m.mapSpec(row, f.Spec); ok {
			record[f.Name] = av
		}
	}
	return record
}

func (m *Mapper) mapSpec(row model.Row, spec FieldSpec) (types.AttributeValue, bool) {
	switch spec.Kind {
	case KindMap:
		nested := m.mapFields(row, spec.Fields)
		if len(nested) == 0 {
			return nil, false
		}
		return &types.AttributeValueMemberM{Value: nested}, true
	case KindList:
		raw, ok := lookup(row, spec.Column)
		if !ok || raw == "" {
			return nil, false
		}
		return m.coerceList(raw, spec.Type)
	default:
		raw, ok := lookup(row, spec.Column)
		if spec.Type == TypeNULL {
			if !ok {
				return nil, false
			}
			return &types.AttributeValueMemberNULL{Value: true}, true
		}
		if !ok || raw == "" {
			return nil, false
		}
		return m.coerceScalar(raw, spec.Type)
	}
}

// lookup finds column in row, tolerating a byte order mark on either side
// and differences in case or surrounding whitespace.
func lookup(row model.Row, column string) (string, bool) {
	if v, ok := row.Values[column]; ok {
		return v, true
	}
	stripped := strings.TrimPrefix(column, byteOrderMark)
	if v, ok := row.Values[stripped]; ok {
		return v, true
	}
	if v, ok := row.Values[byteOrderMark+stripped]; ok {
		return v, true
	}
	want := strings.ToLower(strings.TrimSpace(stripped))
	for _, h := range row.Header {
		if strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, byteOrderMark))) == want {
			if v, ok := row.Values[h]; ok {
				return v, true
			}
		}
	}
	return "", false
}

func (m *Mapper) coerceScalar(raw string, tag TypeTag) (types.AttributeValue, bool) {
	switch tag {
	case TypeS:
		return &types.AttributeValueMemberS{Value: raw}, true
	case TypeN:
		n, ok := parseNumber(raw)
		if !ok {
			return nil, false
		}
		return &types.AttributeValueMemberN{Value: n}, true
	case TypeBOOL:
		b, ok := parseBool(raw)
		if !ok {
			return nil, false
		}
		return &types.AttributeValueMemberBOOL{Value: b}, true
	case TypeB:
		b, ok := parseBinary(raw)
		if !ok {
			return nil, false
		}
		return &types.AttributeValueMemberB{Value: b}, true
	case TypeSS:
		values := m.splitSet(raw, func(s string) (string, bool) { return s, s != "" })
		if len(values) == 0 {
			return nil, false
		}
		return &types.AttributeValueMemberSS{Value: values}, true
	case TypeNS:
		values := m.splitSet(raw, parseNumber)
		if len(values) == 0 {
			return nil, false
		}
		return &types.AttributeValueMemberNS{Value: values}, true
	case TypeBS:
		encoded := m.splitSet(raw, func(s string) (string, bool) {
			if _, ok := parseBinary(s); !ok {
				return "", false
			}
			return s, true
		})
		if len(encoded) == 0 {
			return nil, false
		}
		values := make([][]byte, 0, len(encoded))
		for _, s := range encoded {
			b, _ := parseBinary(s)
			values = append(values, b)
		}
		return &types.AttributeValueMemberBS{Value: values}, true
	case TypeM:
		return parseJSONObject(raw)
	}
	return nil, false
}

func (m *Mapper) coerceList(raw string, element TypeTag) (types.AttributeValue, bool) {
	parts := strings.Split(raw, m.delimiter)
	items := make([]types.AttributeValue, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if av, ok := m.coerceScalar(part, element); ok {
			items = append(items, av)
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	return &types.AttributeValueMemberL{Value: items}, true
}

// splitSet splits a set cell, normalizes each element with parse, drops the
// ones it rejects and returns the distinct survivors in sorted order.
func (m *Mapper) splitSet(raw string, parse func(string) (string, bool)) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, part := range strings.Split(raw, m.delimiter) {
		if v, ok := parse(strings.TrimSpace(part)); ok {
			set.Add(v)
		}
	}
	values := set.ToSlice()
	sort.Strings(values)
	return values
}

func parseNumber(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if !numberPattern.MatchString(s) {
		return "", false
	}
	return s, true
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1", "y":
		return true, true
	case "false", "no", "0", "n":
		return false, true
	}
	return false, false
}

func parseBinary(raw string) ([]byte, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, false
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, true
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, true
	}
	return nil, false
}

// parseJSONObject converts a JSON object cell into an M attribute. Numbers
// keep their literal text.
func parseJSONObject(raw string) (types.AttributeValue, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || len(obj) == 0 {
		return nil, false
	}
	return jsonToAttributeValue(obj)
}

func jsonToAttributeValue(v interface{}) (types.AttributeValue, bool) {
	switch val := v.(type) {
	case nil:
		return &types.AttributeValueMemberNULL{Value: true}, true
	case string:
		return &types.AttributeValueMemberS{Value: val}, true
	case bool:
		return &types.AttributeValueMemberBOOL{Value: val}, true
	case json.Number:
		return &types.AttributeValueMemberN{Value: val.String()}, true
	case []interface{}:
		items := make([]types.AttributeValue, 0, len(val))
		for _, item := range val {
			if av, ok := jsonToAttributeValue(item); ok {
				items = append(items, av)
			}
		}
		return &types.AttributeValueMemberL{Value: items}, true
	case map[string]interface{}:
		fields := make(map[string]types.AttributeValue, len(val))
		for k, item := range val {
			if av, ok := jsonToAttributeValue(item); ok {
				fields[k] = av
			}
		}
		return &types.AttributeValueMemberM{Value: fields}, true
	}
	return nil, false
}
