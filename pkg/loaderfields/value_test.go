package loaderfields

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserialize_RoundTrip(t *testing.T) {
	release := EnumValue{ID: 10, EnumID: 1, Value: "1.20.1"}
	snapshot := EnumValue{ID: 11, EnumID: 1, Value: "23w31a"}

	tests := []struct {
		name  string
		value FieldValue
	}{
		{"integer", IntegerValue(42)},
		{"negative integer", IntegerValue(-7)},
		{"text", TextValue("hello")},
		{"empty text", TextValue("")},
		{"boolean true", BooleanValue(true)},
		{"boolean false", BooleanValue(false)},
		{"enum", EnumValueOf(release)},
		{"array integer", ArrayIntegerValue(1, 2, 2, 3)},
		{"array text", ArrayTextValue("a", "b")},
		{"array boolean", ArrayBooleanValue(true, false, true)},
		{"array enum", ArrayEnumValue(release, snapshot)},
		{"empty array", ArrayTextValue()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Serialize(tt.value)
			require.NoError(t, err)
			assert.Len(t, rows, tt.value.Len())

			got, err := Deserialize(tt.value.Type, rows)
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(got), "round trip changed %v into %v", tt.value, got)
		})
	}
}

func TestSerialize_ColumnPerFamily(t *testing.T) {
	rows, err := Serialize(BooleanValue(true))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ColumnInt, rows[0].Column)
	assert.Equal(t, int64(1), rows[0].Int)

	rows, err = Serialize(TextValue("x"))
	require.NoError(t, err)
	assert.Equal(t, ColumnString, rows[0].Column)

	rows, err = Serialize(EnumValueOf(EnumValue{ID: 3, Value: "required"}))
	require.NoError(t, err)
	assert.Equal(t, ColumnEnum, rows[0].Column)

	i, e, s := rows[0].Columns()
	assert.False(t, i.Valid)
	assert.True(t, e.Valid)
	assert.Equal(t, int32(3), e.Int32)
	assert.False(t, s.Valid)
}

func TestSerialize_Errors(t *testing.T) {
	_, err := Serialize(FieldValue{Type: TypeUnknown})
	assert.Error(t, err)

	_, err = Serialize(FieldValue{Type: TypeInteger, Ints: []int64{1, 2}})
	assert.Error(t, err)

	_, err = Serialize(FieldValue{Type: TypeText})
	assert.Error(t, err)
}

func TestDeserialize_Errors(t *testing.T) {
	t.Run("scalar with many rows", func(t *testing.T) {
		_, err := Deserialize(TypeInteger, []RowValue{{Column: ColumnInt, Int: 1}, {Column: ColumnInt, Int: 2}})
		assert.Error(t, err)
	})

	t.Run("wrong column", func(t *testing.T) {
		_, err := Deserialize(TypeText, []RowValue{{Column: ColumnInt, Int: 1}})
		assert.Error(t, err)
	})

	t.Run("boolean out of domain", func(t *testing.T) {
		_, err := Deserialize(TypeBoolean, []RowValue{{Column: ColumnInt, Int: 2}})
		assert.Error(t, err)
	})
}

func TestRowFromColumns(t *testing.T) {
	row, err := RowFromColumns(sql.NullInt64{Int64: 5, Valid: true}, nil, sql.NullString{})
	require.NoError(t, err)
	assert.Equal(t, ColumnInt, row.Column)

	_, err = RowFromColumns(sql.NullInt64{}, nil, sql.NullString{})
	assert.Error(t, err)

	_, err = RowFromColumns(sql.NullInt64{Int64: 5, Valid: true}, nil, sql.NullString{String: "x", Valid: true})
	assert.Error(t, err)
}

func TestFieldValue_MarshalJSON(t *testing.T) {
	v := ArrayEnumValue(EnumValue{ID: 1, Value: "1.20.1"}, EnumValue{ID: 2, Value: "1.20.2"})
	data, err := json.Marshal(map[string]FieldValue{"game_versions": v})
	require.NoError(t, err)
	assert.JSONEq(t, `{"game_versions":["1.20.1","1.20.2"]}`, string(data))

	data, err = json.Marshal(BooleanValue(false))
	require.NoError(t, err)
	assert.Equal(t, "false", string(data))

	data, err = json.Marshal(ArrayIntegerValue())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestFieldType_Parse(t *testing.T) {
	for ft, name := range fieldTypeNames {
		assert.Equal(t, ft, ParseFieldType(name))
	}
	assert.Equal(t, TypeUnknown, ParseFieldType("float"))
	assert.Equal(t, TypeEnum, TypeArrayEnum.Element())
	assert.True(t, TypeArrayBoolean.IsArray())
	assert.Equal(t, ColumnInt, TypeArrayBoolean.Column())
}

func TestLoaderField_CheckDefinition(t *testing.T) {
	enumID := EnumID(1)
	lo, hi := int32(5), int32(1)

	assert.NoError(t, LoaderField{Field: "game_versions", Type: TypeArrayEnum, EnumType: &enumID}.CheckDefinition())
	assert.Error(t, LoaderField{Field: "game_versions", Type: TypeArrayEnum}.CheckDefinition())
	assert.Error(t, LoaderField{Field: "count", Type: TypeInteger, EnumType: &enumID}.CheckDefinition())
	assert.Error(t, LoaderField{Field: "count", Type: TypeInteger, MinVal: &lo, MaxVal: &hi}.CheckDefinition())
	assert.Error(t, LoaderField{Field: "", Type: TypeText}.CheckDefinition())
	assert.Error(t, LoaderField{Field: ReservedLoaders, Type: TypeArrayEnum, EnumType: &enumID}.CheckDefinition())
}
