package loaderfields

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// EnumLookup resolves submitted enum value strings within one enum
type EnumLookup interface {
	LookupValues(ctx context.Context, enumID EnumID, values []string) (map[string]EnumValue, error)
}

// ValidatedField pairs a field definition with a type-checked value. A value
// with no elements clears the field.
type ValidatedField struct {
	Field LoaderField
	Value FieldValue
}

// ValidateOptions controls request-level checks in ValidateFields
type ValidateOptions struct {
	// Partial skips the required-field check for fields that were not
	// submitted. Used for merges onto an existing version.
	Partial bool
}

// Validate type-checks one submitted JSON value against its definition.
// A nil or JSON null value is "missing". Validation failures are returned
// as *ValidationError; lookup failures are returned as-is.
func Validate(ctx context.Context, field LoaderField, raw json.RawMessage, lookup EnumLookup) (ValidatedField, error) {
	out := ValidatedField{Field: field, Value: FieldValue{Type: field.Type}}

	if isMissing(raw) {
		if field.Optional {
			return out, nil
		}
		return out, &ValidationError{Field: field.Field, Reason: "missing required field"}
	}

	if field.Type == TypeUnknown {
		return out, &ValidationError{Field: field.Field, Reason: "field has an unknown type"}
	}

	var elems []json.RawMessage
	if field.Type.IsArray() {
		if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
			return out, &ValidationError{Field: field.Field, Reason: fmt.Sprintf("expected an array of %s", field.Type.Element())}
		}
		if field.MinVal != nil && len(elems) < int(*field.MinVal) {
			return out, &ValidationError{Field: field.Field, Reason: fmt.Sprintf("must contain at least %d items, got %d", *field.MinVal, len(elems))}
		}
		if field.MaxVal != nil && len(elems) > int(*field.MaxVal) {
			return out, &ValidationError{Field: field.Field, Reason: fmt.Sprintf("must contain at most %d items, got %d", *field.MaxVal, len(elems))}
		}
		// A required array always keeps at least one row
		if len(elems) == 0 && !field.Optional {
			return out, &ValidationError{Field: field.Field, Reason: "missing required field"}
		}
	} else {
		elems = []json.RawMessage{raw}
	}

	value, verr := decodeElements(field, elems)
	if verr != nil {
		return out, verr
	}

	if field.Type.IsEnum() {
		enums, err := resolveEnums(ctx, field, value.Texts, lookup)
		if err != nil {
			return out, err
		}
		value = FieldValue{Type: field.Type, Enums: enums}
	}

	out.Value = value
	return out, nil
}

// ValidateFields validates a whole submission against the fields applicable
// to a version's loaders. Every problem is collected into a single
// *ValidationErrors sorted by field name.
func ValidateFields(ctx context.Context, applicable []LoaderField, submitted map[string]json.RawMessage, lookup EnumLookup, opts ValidateOptions) ([]ValidatedField, error) {
	byName := make(map[string]LoaderField, len(applicable))
	for _, f := range applicable {
		byName[f.Field] = f
	}

	verrs := &ValidationErrors{}

	names := make([]string, 0, len(submitted))
	for name := range submitted {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := byName[name]; !ok {
			verrs.Add(name, "field is not applicable to the version's loaders")
		}
	}

	fields := make([]LoaderField, 0, len(applicable))
	fields = append(fields, applicable...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })

	var validated []ValidatedField
	for _, f := range fields {
		raw, present := submitted[f.Field]
		if !present {
			if !opts.Partial && !f.Optional {
				verrs.Add(f.Field, "missing required field")
			}
			continue
		}

		vf, err := Validate(ctx, f, raw, lookup)
		if err != nil {
			if ve, ok := err.(*ValidationError); ok {
				verrs.Add(ve.Field, ve.Reason)
				continue
			}
			return nil, err
		}
		validated = append(validated, vf)
	}

	if err := verrs.ErrOrNil(); err != nil {
		sort.SliceStable(verrs.Errors, func(i, j int) bool { return verrs.Errors[i].Field < verrs.Errors[j].Field })
		return nil, err
	}
	return validated, nil
}

func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeElements checks each element against the scalar kind. Enum strings
// are collected into Texts for later resolution.
func decodeElements(field LoaderField, elems []json.RawMessage) (FieldValue, *ValidationError) {
	elem := field.Type.Element()
	value := FieldValue{Type: field.Type}
	isArray := field.Type.IsArray()

	fail := func(i int, reason string) (FieldValue, *ValidationError) {
		if isArray {
			reason = fmt.Sprintf("item %d: %s", i, reason)
		}
		return FieldValue{}, &ValidationError{Field: field.Field, Reason: reason}
	}

	for i, raw := range elems {
		switch elem {
		case TypeInteger:
			// json.Number would otherwise accept quoted numerals
			if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '"' {
				return fail(i, "expected an integer")
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return fail(i, "expected an integer")
			}
			v, err := n.Int64()
			if err != nil {
				return fail(i, "expected an integer")
			}
			if !isArray {
				if field.MinVal != nil && v < int64(*field.MinVal) {
					return fail(i, fmt.Sprintf("must be at least %d", *field.MinVal))
				}
				if field.MaxVal != nil && v > int64(*field.MaxVal) {
					return fail(i, fmt.Sprintf("must be at most %d", *field.MaxVal))
				}
			}
			value.Ints = append(value.Ints, v)
		case TypeBoolean:
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return fail(i, "expected a boolean")
			}
			value.Bools = append(value.Bools, b)
		case TypeText:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fail(i, "expected a string")
			}
			if !isArray {
				n := utf8.RuneCountInString(s)
				if field.MinVal != nil && n < int(*field.MinVal) {
					return fail(i, fmt.Sprintf("must be at least %d characters", *field.MinVal))
				}
				if field.MaxVal != nil && n > int(*field.MaxVal) {
					return fail(i, fmt.Sprintf("must be at most %d characters", *field.MaxVal))
				}
			}
			value.Texts = append(value.Texts, s)
		case TypeEnum:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fail(i, "expected an enum value string")
			}
			value.Texts = append(value.Texts, s)
		}
	}

	if field.Type == TypeArrayEnum {
		seen := make(map[string]bool, len(value.Texts))
		for _, s := range value.Texts {
			if seen[s] {
				return FieldValue{}, &ValidationError{Field: field.Field, Reason: fmt.Sprintf("duplicate value %q", s)}
			}
			seen[s] = true
		}
	}
	return value, nil
}

func resolveEnums(ctx context.Context, field LoaderField, names []string, lookup EnumLookup) ([]EnumValue, error) {
	if field.EnumType == nil {
		return nil, &ValidationError{Field: field.Field, Reason: "field has no enum vocabulary"}
	}
	if lookup == nil {
		return nil, fmt.Errorf("no enum lookup configured for field %s", field.Field)
	}

	found, err := lookup.LookupValues(ctx, *field.EnumType, names)
	if err != nil {
		return nil, err
	}

	enums := make([]EnumValue, 0, len(names))
	for _, name := range names {
		ev, ok := found[name]
		if !ok {
			return nil, &ValidationError{Field: field.Field, Reason: fmt.Sprintf("unknown value %q", name)}
		}
		if ev.Deprecated {
			return nil, &ValidationError{Field: field.Field, Reason: fmt.Sprintf("value %q is deprecated", name)}
		}
		enums = append(enums, ev)
	}
	return enums, nil
}
