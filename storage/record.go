package storage

import (
	"encoding/json"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

const (
	// FieldID is the field holding the record id
	FieldID = "id"
	// FieldLastModified is the field holding the record timestamp
	FieldLastModified = "last_modified"
	// FieldDeleted marks tombstones
	FieldDeleted = "deleted"
)

// recordJSON decodes numbers as json.Number so integers
// survive a round trip through the store
var recordJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Record is a stored object. Values are normalized to the
// JSON data model: nil, bool, int64, float64, string,
// []interface{} and map[string]interface{}.
type Record map[string]interface{}

// ID returns the id of the record
func (record Record) ID() string {
	id, _ := record[FieldID].(string)

	return id
}

// LastModified returns the timestamp of the record
func (record Record) LastModified() int64 {
	lastModified, _ := record[FieldLastModified].(int64)

	return lastModified
}

// Deleted returns true for a tombstone
func (record Record) Deleted() bool {
	deleted, _ := record[FieldDeleted].(bool)

	return deleted
}

func tombstone(id string, lastModified int64) Record {
	return Record{FieldID: id, FieldLastModified: lastModified, FieldDeleted: true}
}

// normalize converts an arbitrary JSON-encodable value
// to the JSON data model
func normalize(v interface{}) (interface{}, error) {
	encoded, err := recordJSON.Marshal(v)

	if err != nil {
		return nil, err
	}

	return decode(encoded)
}

func normalizeRecord(record map[string]interface{}) (Record, error) {
	if record == nil {
		return Record{}, nil
	}

	normalized, err := normalize(record)

	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRecord, "could not encode record: %s", err)
	}

	return Record(normalized.(map[string]interface{})), nil
}

func encodeRecord(record Record) ([]byte, error) {
	return recordJSON.Marshal(record)
}

func decodeRecord(encoded []byte) (Record, error) {
	v, err := decode(encoded)

	if err != nil {
		return nil, errors.Wrap(err, "could not decode record")
	}

	m, ok := v.(map[string]interface{})

	if !ok {
		return nil, errors.New("could not decode record: not an object")
	}

	return Record(m), nil
}

func decode(encoded []byte) (interface{}, error) {
	var v interface{}

	if err := recordJSON.Unmarshal(encoded, &v); err != nil {
		return nil, err
	}

	return fromJSONNumbers(v), nil
}

func fromJSONNumbers(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}

		f, _ := value.Float64()

		return f
	case map[string]interface{}:
		for key, elem := range value {
			value[key] = fromJSONNumbers(elem)
		}
	case []interface{}:
		for i, elem := range value {
			value[i] = fromJSONNumbers(elem)
		}
	}

	return v
}

// lookup resolves a dotted field path like "author.name".
// A key containing dots is matched before nested objects.
func lookup(record map[string]interface{}, field string) (interface{}, bool) {
	if value, ok := record[field]; ok {
		return value, true
	}

	for i := strings.Index(field, "."); i >= 0; {
		if nested, ok := record[field[:i]].(map[string]interface{}); ok {
			if value, ok := lookup(nested, field[i+1:]); ok {
				return value, true
			}
		}

		next := strings.Index(field[i+1:], ".")

		if next < 0 {
			break
		}

		i += next + 1
	}

	return nil, false
}
