package storage

import (
	"encoding/base64"
	"strings"

	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/pkg/errors"
)

// Sort orders records by a field. Direction is 1 for
// ascending order and -1 for descending order.
type Sort struct {
	Field     string
	Direction int
}

// ParseSort reads "field" as ascending and "-field" as descending
func ParseSort(s string) Sort {
	if strings.HasPrefix(s, "-") {
		return Sort{Field: s[1:], Direction: -1}
	}

	return Sort{Field: strings.TrimPrefix(s, "+"), Direction: 1}
}

var defaultSort = []Sort{{Field: FieldLastModified, Direction: -1}}

func validateSort(sorting []Sort) ([]Sort, error) {
	if len(sorting) == 0 {
		return defaultSort, nil
	}

	for _, sort := range sorting {
		if sort.Field == "" {
			return nil, errors.Wrap(ErrInvalidFilter, "sort field is empty")
		}

		if sort.Direction != 1 && sort.Direction != -1 {
			return nil, errors.Wrapf(ErrInvalidFilter, "sort direction of %s must be 1 or -1", sort.Field)
		}
	}

	return sorting, nil
}

// entry is a record along with the collection it was read from
type entry struct {
	collection keys.Collection
	record     Record
}

// position locates an entry in a sort order. Entries
// tie-break on id and then on collection.
type position struct {
	Values []interface{} `json:"v"`
	ID     string        `json:"id"`
	Scope  string        `json:"s,omitempty"`
}

func positionOf(sorting []Sort, e entry) position {
	p := position{Values: make([]interface{}, len(sorting)), ID: e.record.ID(), Scope: e.collection.Prefix()}

	for i, sort := range sorting {
		p.Values[i], _ = lookup(e.record, sort.Field)
	}

	return p
}

func comparePositions(sorting []Sort, a, b position) int {
	for i, sort := range sorting {
		if c := compareValues(a.Values[i], b.Values[i]); c != 0 {
			return c * sort.Direction
		}
	}

	if c := strings.Compare(a.ID, b.ID); c != 0 {
		return c
	}

	return strings.Compare(a.Scope, b.Scope)
}

func encodeToken(p position) (string, error) {
	encoded, err := recordJSON.Marshal(p)

	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(encoded), nil
}

func decodeToken(token string, sorting []Sort) (position, error) {
	encoded, err := base64.RawURLEncoding.DecodeString(token)

	if err != nil {
		return position{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	var raw struct {
		Values []interface{} `json:"v"`
		ID     string        `json:"id"`
		Scope  string        `json:"s"`
	}

	if err := recordJSON.Unmarshal(encoded, &raw); err != nil {
		return position{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	if len(raw.Values) != len(sorting) {
		return position{}, errors.Wrap(ErrInvalidToken, "token was issued for another sort order")
	}

	for i, v := range raw.Values {
		raw.Values[i] = fromJSONNumbers(v)
	}

	return position{Values: raw.Values, ID: raw.ID, Scope: raw.Scope}, nil
}
