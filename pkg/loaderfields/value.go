package loaderfields

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// FieldValue is the logical value of one field on one version. Only the
// slice matching Type's element kind is populated; scalar types hold exactly
// one element.
type FieldValue struct {
	Type  FieldType
	Ints  []int64
	Texts []string
	Bools []bool
	Enums []EnumValue
}

// IntegerValue returns a scalar integer value
func IntegerValue(v int64) FieldValue { return FieldValue{Type: TypeInteger, Ints: []int64{v}} }

// TextValue returns a scalar text value
func TextValue(v string) FieldValue { return FieldValue{Type: TypeText, Texts: []string{v}} }

// BooleanValue returns a scalar boolean value
func BooleanValue(v bool) FieldValue { return FieldValue{Type: TypeBoolean, Bools: []bool{v}} }

// EnumValueOf returns a scalar enum value
func EnumValueOf(v EnumValue) FieldValue { return FieldValue{Type: TypeEnum, Enums: []EnumValue{v}} }

// ArrayIntegerValue returns an integer array value
func ArrayIntegerValue(vs ...int64) FieldValue {
	return FieldValue{Type: TypeArrayInteger, Ints: append([]int64{}, vs...)}
}

// ArrayTextValue returns a text array value
func ArrayTextValue(vs ...string) FieldValue {
	return FieldValue{Type: TypeArrayText, Texts: append([]string{}, vs...)}
}

// ArrayBooleanValue returns a boolean array value
func ArrayBooleanValue(vs ...bool) FieldValue {
	return FieldValue{Type: TypeArrayBoolean, Bools: append([]bool{}, vs...)}
}

// ArrayEnumValue returns an enum array value
func ArrayEnumValue(vs ...EnumValue) FieldValue {
	return FieldValue{Type: TypeArrayEnum, Enums: append([]EnumValue{}, vs...)}
}

// Len returns the number of scalar elements, which equals the number of
// version_fields rows the value occupies.
func (v FieldValue) Len() int {
	switch v.Type.Element() {
	case TypeInteger:
		return len(v.Ints)
	case TypeText:
		return len(v.Texts)
	case TypeBoolean:
		return len(v.Bools)
	case TypeEnum:
		return len(v.Enums)
	}
	return 0
}

// EnumStrings returns the value strings of an enum value, in order
func (v FieldValue) EnumStrings() []string {
	out := make([]string, 0, len(v.Enums))
	for _, e := range v.Enums {
		out = append(out, e.Value)
	}
	return out
}

// Logical returns the API-facing value: a scalar for scalar kinds, a slice
// for arrays, with enums rendered as their value strings.
func (v FieldValue) Logical() any {
	if v.Type.IsArray() {
		switch v.Type {
		case TypeArrayInteger:
			return append([]int64{}, v.Ints...)
		case TypeArrayText:
			return append([]string{}, v.Texts...)
		case TypeArrayBoolean:
			return append([]bool{}, v.Bools...)
		case TypeArrayEnum:
			return v.EnumStrings()
		}
	}
	if v.Len() == 0 {
		return nil
	}
	switch v.Type {
	case TypeInteger:
		return v.Ints[0]
	case TypeText:
		return v.Texts[0]
	case TypeBoolean:
		return v.Bools[0]
	case TypeEnum:
		return v.Enums[0].Value
	}
	return nil
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Logical())
}

// Equal compares two values element-wise. Enum elements compare by id and
// value string.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Type != o.Type || v.Len() != o.Len() {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		switch v.Type.Element() {
		case TypeInteger:
			if v.Ints[i] != o.Ints[i] {
				return false
			}
		case TypeText:
			if v.Texts[i] != o.Texts[i] {
				return false
			}
		case TypeBoolean:
			if v.Bools[i] != o.Bools[i] {
				return false
			}
		case TypeEnum:
			if v.Enums[i].ID != o.Enums[i].ID || v.Enums[i].Value != o.Enums[i].Value {
				return false
			}
		}
	}
	return true
}

// ValueColumn identifies which version_fields column a row populates
type ValueColumn int

const (
	ColumnNone ValueColumn = iota
	ColumnInt
	ColumnEnum
	ColumnString
)

func (c ValueColumn) String() string {
	switch c {
	case ColumnInt:
		return "int_value"
	case ColumnEnum:
		return "enum_value"
	case ColumnString:
		return "string_value"
	}
	return "none"
}

// RowValue is one version_fields row's payload: exactly one of the three
// value columns, selected by Column.
type RowValue struct {
	Column ValueColumn
	Int    int64
	Enum   EnumValue
	String string
}

// Columns renders the row as the nullable (int_value, enum_value,
// string_value) triple written to the database.
func (r RowValue) Columns() (sql.NullInt64, sql.NullInt32, sql.NullString) {
	var (
		i sql.NullInt64
		e sql.NullInt32
		s sql.NullString
	)
	switch r.Column {
	case ColumnInt:
		i = sql.NullInt64{Int64: r.Int, Valid: true}
	case ColumnEnum:
		e = sql.NullInt32{Int32: int32(r.Enum.ID), Valid: true}
	case ColumnString:
		s = sql.NullString{String: r.String, Valid: true}
	}
	return i, e, s
}

// RowFromColumns rebuilds a RowValue from scanned columns. enum carries the
// joined enum value when enum_value is set. Exactly one column must be
// populated.
func RowFromColumns(i sql.NullInt64, enumValue *EnumValue, s sql.NullString) (RowValue, error) {
	populated := 0
	var row RowValue
	if i.Valid {
		populated++
		row = RowValue{Column: ColumnInt, Int: i.Int64}
	}
	if enumValue != nil {
		populated++
		row = RowValue{Column: ColumnEnum, Enum: *enumValue}
	}
	if s.Valid {
		populated++
		row = RowValue{Column: ColumnString, String: s.String}
	}
	if populated != 1 {
		return RowValue{}, fmt.Errorf("version field row has %d populated value columns, want 1", populated)
	}
	return row, nil
}

// Serialize converts a logical value into the rows that store it
func Serialize(v FieldValue) ([]RowValue, error) {
	if v.Type == TypeUnknown {
		return nil, fmt.Errorf("cannot serialize value of unknown type")
	}
	if !v.Type.IsArray() && v.Len() != 1 {
		return nil, fmt.Errorf("scalar %s value must have exactly one element, got %d", v.Type, v.Len())
	}

	rows := make([]RowValue, 0, v.Len())
	switch v.Type.Element() {
	case TypeInteger:
		for _, n := range v.Ints {
			rows = append(rows, RowValue{Column: ColumnInt, Int: n})
		}
	case TypeBoolean:
		for _, b := range v.Bools {
			n := int64(0)
			if b {
				n = 1
			}
			rows = append(rows, RowValue{Column: ColumnInt, Int: n})
		}
	case TypeText:
		for _, s := range v.Texts {
			rows = append(rows, RowValue{Column: ColumnString, String: s})
		}
	case TypeEnum:
		for _, e := range v.Enums {
			rows = append(rows, RowValue{Column: ColumnEnum, Enum: e})
		}
	}
	return rows, nil
}

// Deserialize folds the rows of one (version, field) pair back into a
// logical value of type t.
func Deserialize(t FieldType, rows []RowValue) (FieldValue, error) {
	if t == TypeUnknown {
		return FieldValue{}, fmt.Errorf("cannot deserialize value of unknown type")
	}
	if !t.IsArray() && len(rows) != 1 {
		return FieldValue{}, fmt.Errorf("scalar %s field has %d rows, want 1", t, len(rows))
	}

	want := t.Column()
	v := FieldValue{Type: t}
	for _, row := range rows {
		if row.Column != want {
			return FieldValue{}, fmt.Errorf("%s field row populates %s, want %s", t, row.Column, want)
		}
		switch t.Element() {
		case TypeInteger:
			v.Ints = append(v.Ints, row.Int)
		case TypeBoolean:
			if row.Int != 0 && row.Int != 1 {
				return FieldValue{}, fmt.Errorf("boolean field row holds %d, want 0 or 1", row.Int)
			}
			v.Bools = append(v.Bools, row.Int == 1)
		case TypeText:
			v.Texts = append(v.Texts, row.String)
		case TypeEnum:
			v.Enums = append(v.Enums, row.Enum)
		}
	}
	return v, nil
}
