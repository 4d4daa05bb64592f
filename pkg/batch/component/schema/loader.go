package schema

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/ddbimport/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const moduleName = "schema"

// objectSpec is the object form of a scalar or list field.
type objectSpec struct {
	Column string `yaml:"column"`
	Type   string `yaml:"type"`
}

// Load reads and parses a schema file. JSON and YAML documents are both accepted.
// Any failure is a precondition error.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, exception.NewPreconditionError(moduleName, fmt.Sprintf("cannot read schema file %s", path), errors.Join(exception.ErrInvalidSchema, err))
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded schema from %s (%d top-level fields).", path, len(s.Fields))
	return s, nil
}

// Parse parses a schema document. Field order follows the document.
func Parse(data []byte) (*Schema, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, invalid("schema document is not valid JSON or YAML", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, invalid("schema document must be an object", nil)
	}
	doc := root.Content[0]

	s := &Schema{}
	var mapping *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, value := doc.Content[i].Value, doc.Content[i+1]
		switch key {
		case "hash_key":
			s.HashKey = value.Value
		case "range_key":
			if value.Tag != "!!null" {
				s.RangeKey = value.Value
			}
		case "mapping":
			mapping = value
		}
	}
	if mapping == nil {
		return nil, invalid("schema is missing required 'mapping' field", nil)
	}
	if mapping.Kind != yaml.MappingNode {
		return nil, invalid("'mapping' must be an object", nil)
	}

	fields, err := parseFields(mapping, "")
	if err != nil {
		return nil, invalid("schema mapping is invalid", err)
	}
	s.Fields = fields
	return s, nil
}

func invalid(message string, err error) error {
	cause := exception.ErrInvalidSchema
	if err != nil {
		cause = errors.Join(exception.ErrInvalidSchema, err)
	}
	return exception.NewPreconditionError(moduleName, message, cause)
}

// parseFields normalizes every entry of a mapping node, collecting all problems.
func parseFields(node *yaml.Node, path string) ([]Field, error) {
	var result *multierror.Error
	fields := make([]Field, 0, len(node.Content)/2)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		fieldPath := name
		if path != "" {
			fieldPath = path + "." + name
		}
		if seen[name] {
			result = multierror.Append(result, fmt.Errorf("%s: duplicate attribute", fieldPath))
			continue
		}
		seen[name] = true

		spec, err := parseFieldSpec(node.Content[i+1], fieldPath)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		fields = append(fields, Field{Name: name, Spec: spec})
	}
	return fields, result.ErrorOrNil()
}

func parseFieldSpec(node *yaml.Node, path string) (FieldSpec, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		spec, err := parseMappingString(node.Value)
		if err != nil {
			return FieldSpec{}, fmt.Errorf("%s: %w", path, err)
		}
		return spec, nil
	case yaml.MappingNode:
		return parseObjectSpec(node, path)
	}
	return FieldSpec{}, fmt.Errorf("%s: field spec must be a string or an object", path)
}

// parseObjectSpec handles the three object shapes: explicit map ({"type":"M",
// "fields":{...}}), object scalar ({"column":..., "type":...}) and the plain
// nested object form.
func parseObjectSpec(node *yaml.Node, path string) (FieldSpec, error) {
	keys := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys[node.Content[i].Value] = node.Content[i+1]
	}

	if typeNode, ok := keys["type"]; ok && typeNode.Kind == yaml.ScalarNode && typeNode.Value == string(TypeM) {
		if fieldsNode, ok := keys["fields"]; ok && fieldsNode.Kind == yaml.MappingNode {
			return nestedMap(fieldsNode, path)
		}
		if _, hasColumn := keys["column"]; !hasColumn {
			return FieldSpec{}, fmt.Errorf("%s: explicit map form requires a 'fields' object", path)
		}
	}

	if isObjectScalar(keys) {
		var raw map[string]interface{}
		if err := node.Decode(&raw); err != nil {
			return FieldSpec{}, fmt.Errorf("%s: %w", path, err)
		}
		var obj objectSpec
		if err := configbinder.BindProperties(raw, &obj); err != nil {
			return FieldSpec{}, fmt.Errorf("%s: %w", path, err)
		}
		if obj.Column == "" {
			return FieldSpec{}, fmt.Errorf("%s: 'column' must not be empty", path)
		}
		spec, err := parseTypeExpr(obj.Column, obj.Type)
		if err != nil {
			return FieldSpec{}, fmt.Errorf("%s: %w", path, err)
		}
		return spec, nil
	}

	return nestedMap(node, path)
}

func nestedMap(node *yaml.Node, path string) (FieldSpec, error) {
	fields, err := parseFields(node, path)
	if err != nil {
		return FieldSpec{}, err
	}
	if len(fields) == 0 {
		return FieldSpec{}, fmt.Errorf("%s: nested map has no fields", path)
	}
	return Map(fields...), nil
}

// isObjectScalar reports whether keys describe {"column": ..., "type": ...}.
func isObjectScalar(keys map[string]*yaml.Node) bool {
	col, ok := keys["column"]
	if !ok || col.Kind != yaml.ScalarNode {
		return false
	}
	for k, v := range keys {
		if (k != "column" && k != "type") || v.Kind != yaml.ScalarNode {
			return false
		}
	}
	return true
}

// Validate checks that the key attributes are declared as top-level scalar
// fields of a key-capable type. Every problem is reported.
func (s *Schema) Validate() error {
	var result *multierror.Error
	if s.HashKey == "" {
		result = multierror.Append(result, errors.New("hash key is not set"))
	}
	if !s.Legacy {
		if len(s.Fields) == 0 {
			result = multierror.Append(result, errors.New("mapping has no fields"))
		}
		for _, key := range []struct{ role, name string }{{"hash", s.HashKey}, {"range", s.RangeKey}} {
			if key.name == "" {
				continue
			}
			spec, ok := s.Field(key.name)
			switch {
			case !ok:
				result = multierror.Append(result, fmt.Errorf("%s key %q is not defined in the mapping", key.role, key.name))
			case spec.Kind != KindScalar || !spec.Type.IsKeyType():
				result = multierror.Append(result, fmt.Errorf("%s key %q must map to an S, N or B scalar, got %s %s", key.role, key.name, spec.Kind, spec.Type))
			}
		}
	}
	if s.HashKey != "" && s.HashKey == s.RangeKey {
		result = multierror.Append(result, fmt.Errorf("hash key and range key are both %q", s.HashKey))
	}
	if err := result.ErrorOrNil(); err != nil {
		return invalid("schema validation failed", err)
	}
	return nil
}
