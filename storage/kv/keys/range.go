package keys

import (
	"bytes"
)

// All returns a new key range matching all keys
func All() Range {
	return Range{}
}

// Range represents all keys such that
//
//	k >= Min and k < Max
//
// If Min = nil that indicates the start of all keys
// If Max = nil that indicates the end of all keys
// If multiple modifiers are called on a range the end
// result is effectively the same as ANDing all the
// restrictions.
type Range struct {
	Min []byte
	Max []byte
}

// Gte confines the range to keys that are
// greater than or equal to k
func (r Range) Gte(k []byte) Range {
	if compare(k, r.Min) <= 0 {
		return r
	}

	r.Min = k

	return r
}

// Lt confines the range to keys that are
// less than k
func (r Range) Lt(k []byte) Range {
	if k == nil || r.Max != nil && compare(k, r.Max) >= 0 {
		return r
	}

	r.Max = k

	return r
}

// Prefix confines the range to keys that
// have the prefix k, including k itself
func (r Range) Prefix(k []byte) Range {
	return r.Gte(k).Lt(inc(k))
}

// Contains returns true if k is inside the range
func (r Range) Contains(k []byte) bool {
	if r.Min != nil && bytes.Compare(k, r.Min) < 0 {
		return false
	}

	return r.Max == nil || bytes.Compare(k, r.Max) < 0
}

// Past returns true if k sorts after every key of the range
func (r Range) Past(k []byte) bool {
	return r.Max != nil && bytes.Compare(k, r.Max) >= 0
}

func compare(a []byte, b []byte) int {
	if a == nil {
		if b == nil {
			return 0
		}

		return -1
	}

	if b == nil {
		return 1
	}

	return bytes.Compare(a, b)
}

// inc treats k as a big-endian unsigned integer
// and returns k + 1
func inc(k []byte) []byte {
	carry := true
	after := make([]byte, len(k))

	copy(after, k)

	for i := len(after) - 1; i >= 0 && carry; i-- {
		if after[i] < 0xff {
			carry = false
		}

		after[i]++
	}

	// carry will only be true if all elements of k
	// were equal to 0xff. The range should just go
	// all the way to the end of the real key range.
	if carry {
		return nil
	}

	return after
}
