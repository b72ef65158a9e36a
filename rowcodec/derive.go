package rowcodec

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

const (
	tagName       = "row"
	defaultOption = "default="
)

// structPlan binds a derived schema to the struct fields that carry it.
type structPlan struct {
	schema *Schema
	fields []int // struct field index for each schema field
}

type planEntry struct {
	plan *structPlan
	err  error
}

// plans caches one derivation per struct type for the process lifetime.
var plans sync.Map // reflect.Type -> planEntry

// DeriveStruct derives the schema of a struct type from its exported fields.
func DeriveStruct(rt reflect.Type) (*Schema, error) {
	p, err := planFor(rt)
	if err != nil {
		return nil, err
	}
	return p.schema, nil
}

func planFor(rt reflect.Type) (*structPlan, error) {
	if e, ok := plans.Load(rt); ok {
		pe := e.(planEntry)
		return pe.plan, pe.err
	}
	p, err := buildPlan(rt)
	e, _ := plans.LoadOrStore(rt, planEntry{plan: p, err: err})
	pe := e.(planEntry)
	return pe.plan, pe.err
}

func buildPlan(rt reflect.Type) (*structPlan, error) {
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrSchema, rt)
	}

	var (
		decls  []FieldDecl
		fields []int
	)
	for i := range rt.NumField() {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get(tagName)
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = snakeCase(sf.Name)
		}

		ft, err := TypeOf(sf.Type)
		if err != nil {
			return nil, &ErrUnsupportedFieldType{Field: name, Type: sf.Type.String()}
		}

		decl := FieldDecl{Name: name, Type: ft}
		if lit, ok := strings.CutPrefix(opts, defaultOption); ok {
			def, err := parseDefault(ft, lit)
			if err != nil {
				return nil, &ErrInvalidDefault{Field: name, Type: ft.Name(), Value: lit, cause: err}
			}
			decl.Default = def
		}
		decls = append(decls, decl)
		fields = append(fields, i)
	}

	s, err := Derive(decls)
	if err != nil {
		return nil, err
	}
	return &structPlan{schema: s, fields: fields}, nil
}

func parseDefault(t FieldType, lit string) (any, error) {
	switch t.kind {
	case KindUint64:
		return strconv.ParseUint(lit, 0, 64)
	case KindInt64, KindEnum:
		return strconv.ParseInt(lit, 0, 64)
	case KindFloat32:
		f, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case KindString:
		return lit, nil
	default:
		if lit != "" {
			return nil, fmt.Errorf("list defaults must be empty")
		}
		return nil, nil
	}
}

// snakeCase converts a Go identifier to snake_case ("SparseRawTerms" ->
// "sparse_raw_terms", "HTTPPort" -> "http_port").
func snakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
