package storage

import (
	"math"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

// Operator is a filter comparison
type Operator string

const (
	// OpEq matches fields equal to the value
	OpEq Operator = "eq"
	// OpNot matches fields not equal to the value, including missing fields
	OpNot Operator = "not"
	// OpLt matches fields less than the value
	OpLt Operator = "lt"
	// OpMax matches fields less than or equal to the value
	OpMax Operator = "max"
	// OpGt matches fields greater than the value
	OpGt Operator = "gt"
	// OpMin matches fields greater than or equal to the value
	OpMin Operator = "min"
	// OpIn matches fields equal to one of the values
	OpIn Operator = "in"
	// OpExclude matches fields equal to none of the values
	OpExclude Operator = "exclude"
	// OpLike matches string fields against a case-insensitive
	// pattern where * stands for any text. A pattern without *
	// matches fields containing it.
	OpLike Operator = "like"
	// OpHas matches records that have the field when the value
	// is true and records that do not when it is false
	OpHas Operator = "has"
	// OpContains matches list fields containing every value
	OpContains Operator = "contains"
	// OpContainsAny matches list fields containing at least one value
	OpContainsAny Operator = "contains_any"
)

// Filter is a predicate on a record field. Field may be
// a dotted path into nested objects.
type Filter struct {
	Field    string
	Operator Operator
	Value    interface{}
}

type compiledFilter struct {
	Filter
	values  []interface{}
	pattern glob.Glob
}

func compileFilters(filters []Filter) ([]compiledFilter, error) {
	compiled := make([]compiledFilter, len(filters))

	for i, filter := range filters {
		c, err := compileFilter(filter)

		if err != nil {
			return nil, err
		}

		compiled[i] = c
	}

	return compiled, nil
}

func compileFilter(filter Filter) (compiledFilter, error) {
	if filter.Field == "" {
		return compiledFilter{}, errors.Wrap(ErrInvalidFilter, "filter field is empty")
	}

	value, err := normalize(filter.Value)

	if err != nil {
		return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "%s: %s", filter.Field, err)
	}

	// ids are strings: id=1 means id="1"
	if filter.Field == FieldID {
		value = idValue(value)
	}

	compiled := compiledFilter{Filter: filter}
	compiled.Value = value

	switch filter.Operator {
	case OpEq, OpNot:
	case OpLt, OpMax, OpGt, OpMin:
		if r := rank(value); r == rankList || r == rankObject || r == rankNil {
			return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "%s: %s needs a scalar value", filter.Field, filter.Operator)
		}
	case OpIn, OpExclude, OpContains, OpContainsAny:
		values, ok := value.([]interface{})

		if !ok {
			if filter.Operator == OpIn || filter.Operator == OpExclude {
				return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "%s: %s needs a list of values", filter.Field, filter.Operator)
			}

			values = []interface{}{value}
		}

		if filter.Field == FieldID {
			for i, v := range values {
				values[i] = idValue(v)
			}
		}

		compiled.values = values
	case OpLike:
		s, ok := value.(string)

		if !ok {
			return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "%s: like needs a string", filter.Field)
		}

		pattern, err := likePattern(s)

		if err != nil {
			return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "%s: %s", filter.Field, err)
		}

		compiled.pattern = pattern
	case OpHas:
		if _, ok := value.(bool); !ok {
			return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "%s: has needs a boolean", filter.Field)
		}
	default:
		return compiledFilter{}, errors.Wrapf(ErrInvalidFilter, "unknown operator %q", filter.Operator)
	}

	return compiled, nil
}

func idValue(v interface{}) interface{} {
	switch v.(type) {
	case int64, float64:
		s, _ := recordJSON.MarshalToString(v)

		return s
	}

	return v
}

func likePattern(s string) (glob.Glob, error) {
	s = strings.ToLower(s)

	if !strings.Contains(s, "*") {
		s = "*" + s + "*"
	}

	parts := strings.Split(s, "*")

	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}

	return glob.Compile(strings.Join(parts, "*"))
}

func (filter compiledFilter) match(record Record) bool {
	value, ok := lookup(record, filter.Field)

	switch filter.Operator {
	case OpHas:
		return ok == filter.Value.(bool)
	case OpNot:
		return !ok || compareValues(value, filter.Value) != 0
	case OpExclude:
		return !ok || !containsValue(filter.values, value)
	}

	if !ok {
		return false
	}

	switch filter.Operator {
	case OpEq:
		return compareValues(value, filter.Value) == 0
	case OpLt, OpMax, OpGt, OpMin:
		// ordering only applies between values of one kind
		if rank(value) != rank(filter.Value) {
			return false
		}

		c := compareValues(value, filter.Value)

		switch filter.Operator {
		case OpLt:
			return c < 0
		case OpMax:
			return c <= 0
		case OpGt:
			return c > 0
		}

		return c >= 0
	case OpIn:
		return containsValue(filter.values, value)
	case OpLike:
		s, isString := value.(string)

		return isString && filter.pattern.Match(strings.ToLower(s))
	case OpContains, OpContainsAny:
		list, isList := value.([]interface{})

		if !isList {
			return false
		}

		for _, v := range filter.values {
			found := containsValue(list, v)

			if found && filter.Operator == OpContainsAny {
				return true
			}

			if !found && filter.Operator == OpContains {
				return false
			}
		}

		return filter.Operator == OpContains
	}

	return false
}

func containsValue(values []interface{}, value interface{}) bool {
	for _, v := range values {
		if compareValues(v, value) == 0 {
			return true
		}
	}

	return false
}

func matchAll(filters []compiledFilter, record Record) bool {
	for _, filter := range filters {
		if !filter.match(record) {
			return false
		}
	}

	return true
}

// scoreBounds narrows the last_modified range worth
// reading from a collection index. min > max means
// no record can match.
func scoreBounds(filters []compiledFilter, min, max int64) (int64, int64) {
	for _, filter := range filters {
		if filter.Field != FieldLastModified {
			continue
		}

		v, ok := filter.Value.(int64)

		if !ok {
			continue
		}

		switch filter.Operator {
		case OpEq:
			min, max = maxInt(min, v), minInt(max, v)
		case OpGt:
			if v == math.MaxInt64 {
				return 1, 0
			}

			min = maxInt(min, v+1)
		case OpMin:
			min = maxInt(min, v)
		case OpLt:
			if v == math.MinInt64 {
				return 1, 0
			}

			max = minInt(max, v-1)
		case OpMax:
			max = minInt(max, v)
		}
	}

	return min, max
}

func minInt(a, b int64) int64 {
	if a < b {
		return a
	}

	return b
}

func maxInt(a, b int64) int64 {
	if a > b {
		return a
	}

	return b
}
