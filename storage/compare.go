package storage

import (
	"strings"
)

// Values of different kinds order as
// nil < bool < number < string < list < object
const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankList
	rankObject
)

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case int64, float64:
		return rankNumber
	case string:
		return rankString
	case []interface{}:
		return rankList
	}

	return rankObject
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}

	return 0
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}

	return 0
}

// compareValues defines a total order over normalized values
func compareValues(a, b interface{}) int {
	if ra, rb := rank(a), rank(b); ra != rb {
		return compareInts(int64(ra), int64(rb))
	}

	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)

		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}

		return 1
	case int64:
		if bv, ok := b.(int64); ok {
			return compareInts(av, bv)
		}
	case string:
		return strings.Compare(av, b.(string))
	case []interface{}:
		bv := b.([]interface{})

		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := compareValues(av[i], bv[i]); c != 0 {
				return c
			}
		}

		return compareInts(int64(len(av)), int64(len(bv)))
	case map[string]interface{}:
		ea, _ := recordJSON.MarshalToString(av)
		eb, _ := recordJSON.MarshalToString(b)

		return strings.Compare(ea, eb)
	}

	return compareFloats(toFloat(a), toFloat(b))
}
