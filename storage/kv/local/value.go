package local

import (
	"time"

	"github.com/jrife/kvbackend/storage/kv"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type kind int

const (
	kindAny kind = iota
	kindString
	kindSet
	kindZSet
	kindList
)

// value is what a local engine stores under a key
type value struct {
	Kind     kind             `json:"k"`
	Str      []byte           `json:"s,omitempty"`
	Set      map[string]bool  `json:"m,omitempty"`
	ZSet     map[string]int64 `json:"z,omitempty"`
	List     [][]byte         `json:"l,omitempty"`
	ExpireAt int64            `json:"e,omitempty"`
}

func newValue(k kind) *value {
	v := &value{Kind: k}

	switch k {
	case kindSet:
		v.Set = map[string]bool{}
	case kindZSet:
		v.ZSet = map[string]int64{}
	}

	return v
}

func (v *value) expired(now time.Time) bool {
	return v.ExpireAt != 0 && now.UnixNano()/int64(time.Millisecond) >= v.ExpireAt
}

func (v *value) empty() bool {
	switch v.Kind {
	case kindSet:
		return len(v.Set) == 0
	case kindZSet:
		return len(v.ZSet) == 0
	case kindList:
		return len(v.List) == 0
	}

	return false
}

func (v *value) check(k kind) error {
	if k != kindAny && v.Kind != k {
		return kv.ErrWrongType
	}

	return nil
}

func encodeValue(v *value) ([]byte, error) {
	return json.Marshal(v)
}

func decodeValue(data []byte) (*value, error) {
	var v value

	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}

	return &v, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte{}, b...)
}
