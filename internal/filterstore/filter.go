// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package filterstore

import qdrant "github.com/qdrant/go-client/qdrant"

// Constraint is one leaf of a filter's constraint tree: equality,
// membership, a numeric range, or a text match. Constraints are combined
// with logical AND; the store never builds OR/NOT trees because nothing
// in the query surface asks for one.
type Constraint struct {
	Field        string
	Equals       any
	AnyOf        []any
	RangeGTE     *float64
	RangeLTE     *float64
	TextContains string
	TextMatch    string
}

// Filter is an ordered set of Constraints, ANDed together.
type Filter struct {
	Constraints []Constraint
}

// Eq is a convenience constructor for an equality constraint.
func Eq(field string, value any) Constraint {
	return Constraint{Field: field, Equals: value}
}

// AnyOf is a convenience constructor for a membership constraint.
func AnyOf(field string, values ...any) Constraint {
	return Constraint{Field: field, AnyOf: values}
}

// Range is a convenience constructor for a numeric range constraint.
func Range(field string, gte, lte *float64) Constraint {
	return Constraint{Field: field, RangeGTE: gte, RangeLTE: lte}
}

// TextContains is a convenience constructor for a substring match constraint.
func TextContains(field, substr string) Constraint {
	return Constraint{Field: field, TextContains: substr}
}

// TextMatch is a convenience constructor for a full-text match constraint.
func TextMatch(field, text string) Constraint {
	return Constraint{Field: field, TextMatch: text}
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Constraints) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(f.Constraints))
	for _, c := range f.Constraints {
		if cond := toQdrantCondition(c); cond != nil {
			must = append(must, cond)
		}
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func toQdrantCondition(c Constraint) *qdrant.Condition {
	switch {
	case c.Equals != nil:
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   c.Field,
					Match: matchValue(c.Equals),
				},
			},
		}
	case len(c.AnyOf) > 0:
		keywords := make([]string, 0, len(c.AnyOf))
		for _, v := range c.AnyOf {
			if s, ok := v.(string); ok {
				keywords = append(keywords, s)
			}
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keywords{
							Keywords: &qdrant.RepeatedStrings{Strings: keywords},
						},
					},
				},
			},
		}
	case c.RangeGTE != nil || c.RangeLTE != nil:
		r := &qdrant.Range{}
		if c.RangeGTE != nil {
			r.Gte = c.RangeGTE
		}
		if c.RangeLTE != nil {
			r.Lte = c.RangeLTE
		}
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{Key: c.Field, Range: r},
			},
		}
	case c.TextContains != "":
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Text{Text: c.TextContains},
					},
				},
			},
		}
	case c.TextMatch != "":
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: c.Field,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: c.TextMatch},
					},
				},
			},
		}
	}
	return nil
}

func matchValue(v any) *qdrant.Match {
	switch val := v.(type) {
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val}}
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: val}}
	case int:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(val)}}
	case int64:
		return &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: val}}
	default:
		return nil
	}
}
