package vectorstore

import "encoding/json"

// Filter is a small boolean algebra over row attributes: equality,
// inequality, range bounds, set membership, negated membership, and
// conjunction. It marshals to the nested tagged-array shape the index
// service expects, e.g.
//
//	["doc_id", "Eq", "abc"]
//	["And", [["project_id", "Eq", "p1"], ["doc_id", "NotIn", ["a", "b"]]]]
//
// The zero Filter means "no filter" and is skipped by And and omitted from
// requests. Constructors return the zero Filter instead of comparing an
// attribute to an absent value, so a null comparison, which the service
// rejects, cannot be built.
type Filter struct {
	op       string
	field    string
	value    string
	values   []string
	children []Filter
}

// Filter operators.
const (
	opEq    = "Eq"
	opNotEq = "NotEq"
	opIn    = "In"
	opNotIn = "NotIn"
	opGte   = "Gte"
	opLte   = "Lte"
	opAnd   = "And"
)

// IsZero reports whether the filter is empty.
func (f Filter) IsZero() bool {
	return f.op == ""
}

// Eq matches rows whose attribute equals value. An empty value yields the
// zero Filter.
func Eq(field, value string) Filter {
	if field == "" || value == "" {
		return Filter{}
	}
	return Filter{op: opEq, field: field, value: value}
}

// NotEq matches rows whose attribute differs from value.
func NotEq(field, value string) Filter {
	if field == "" || value == "" {
		return Filter{}
	}
	return Filter{op: opNotEq, field: field, value: value}
}

// Gte matches rows whose attribute is >= value (string comparison; use
// RFC 3339 timestamps for time ranges).
func Gte(field, value string) Filter {
	if field == "" || value == "" {
		return Filter{}
	}
	return Filter{op: opGte, field: field, value: value}
}

// Lte matches rows whose attribute is <= value.
func Lte(field, value string) Filter {
	if field == "" || value == "" {
		return Filter{}
	}
	return Filter{op: opLte, field: field, value: value}
}

// In matches rows whose attribute is one of values. An empty set yields the
// zero Filter rather than a match-nothing comparison.
func In(field string, values []string) Filter {
	values = nonEmpty(values)
	if field == "" || len(values) == 0 {
		return Filter{}
	}
	return Filter{op: opIn, field: field, values: values}
}

// NotIn matches rows whose attribute is none of values. An empty set
// excludes nothing and yields the zero Filter.
func NotIn(field string, values []string) Filter {
	values = nonEmpty(values)
	if field == "" || len(values) == 0 {
		return Filter{}
	}
	return Filter{op: opNotIn, field: field, values: values}
}

// And combines filters; zero filters are skipped. A single surviving filter
// is returned as-is, and no survivors yield the zero Filter.
func And(filters ...Filter) Filter {
	var kept []Filter
	for _, f := range filters {
		if f.IsZero() {
			continue
		}
		kept = append(kept, f)
	}
	switch len(kept) {
	case 0:
		return Filter{}
	case 1:
		return kept[0]
	default:
		return Filter{op: opAnd, children: kept}
	}
}

// MarshalJSON renders the nested tagged-array wire shape.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return []byte("null"), nil
	}

	switch f.op {
	case opAnd:
		return json.Marshal([]interface{}{opAnd, f.children})
	case opIn, opNotIn:
		return json.Marshal([]interface{}{f.field, f.op, f.values})
	default:
		return json.Marshal([]interface{}{f.field, f.op, f.value})
	}
}

func nonEmpty(values []string) []string {
	var kept []string
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return kept
}
