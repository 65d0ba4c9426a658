package loaderfields

import (
	"encoding/json"
	"fmt"
)

// FieldType is the closed set of value kinds a LoaderField can declare
type FieldType int

const (
	TypeUnknown FieldType = iota
	TypeInteger
	TypeText
	TypeBoolean
	TypeEnum
	TypeArrayInteger
	TypeArrayText
	TypeArrayBoolean
	TypeArrayEnum
)

var fieldTypeNames = map[FieldType]string{
	TypeUnknown:      "unknown",
	TypeInteger:      "integer",
	TypeText:         "text",
	TypeBoolean:      "boolean",
	TypeEnum:         "enum",
	TypeArrayInteger: "array_integer",
	TypeArrayText:    "array_text",
	TypeArrayBoolean: "array_boolean",
	TypeArrayEnum:    "array_enum",
}

// ParseFieldType maps the stored field_type tag to a FieldType.
// Unrecognized tags yield TypeUnknown.
func ParseFieldType(s string) FieldType {
	for t, name := range fieldTypeNames {
		if name == s {
			return t
		}
	}
	return TypeUnknown
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsArray reports whether values of this type are collections
func (t FieldType) IsArray() bool {
	switch t {
	case TypeArrayInteger, TypeArrayText, TypeArrayBoolean, TypeArrayEnum:
		return true
	}
	return false
}

// IsEnum reports whether the type references an enum vocabulary
func (t FieldType) IsEnum() bool {
	return t == TypeEnum || t == TypeArrayEnum
}

// Element returns the scalar kind of an array type, or t itself
func (t FieldType) Element() FieldType {
	switch t {
	case TypeArrayInteger:
		return TypeInteger
	case TypeArrayText:
		return TypeText
	case TypeArrayBoolean:
		return TypeBoolean
	case TypeArrayEnum:
		return TypeEnum
	}
	return t
}

// Column returns the version_fields value column used by this type family
func (t FieldType) Column() ValueColumn {
	switch t.Element() {
	case TypeInteger, TypeBoolean:
		return ColumnInt
	case TypeEnum:
		return ColumnEnum
	case TypeText:
		return ColumnString
	}
	return ColumnNone
}

func (t FieldType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *FieldType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("field type must be a string: %w", err)
	}
	*t = ParseFieldType(s)
	return nil
}

// CheckDefinition verifies a field definition is internally consistent
// before it is stored.
func (f LoaderField) CheckDefinition() error {
	if f.Field == "" {
		return &ValidationError{Field: "field", Reason: "field name must not be empty"}
	}
	if f.Field == ReservedLoaders || f.Field == ReservedProjectTypes {
		return &ValidationError{Field: f.Field, Reason: "field name is reserved"}
	}
	if f.Type == TypeUnknown {
		return &ValidationError{Field: f.Field, Reason: "unknown field type"}
	}
	if f.Type.IsEnum() && f.EnumType == nil {
		return &ValidationError{Field: f.Field, Reason: fmt.Sprintf("%s field requires an enum_type", f.Type)}
	}
	if !f.Type.IsEnum() && f.EnumType != nil {
		return &ValidationError{Field: f.Field, Reason: fmt.Sprintf("%s field cannot reference an enum", f.Type)}
	}
	if f.MinVal != nil && f.MaxVal != nil && *f.MinVal > *f.MaxVal {
		return &ValidationError{Field: f.Field, Reason: "min_val is greater than max_val"}
	}
	return nil
}
