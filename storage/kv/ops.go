package kv

import (
	"time"
)

// OpType identifies the command carried by an Op
type OpType int

const (
	// OpSet is a Set command
	OpSet OpType = iota
	// OpDel is a Del command
	OpDel
	// OpSAdd is an SAdd command
	OpSAdd
	// OpSRem is an SRem command
	OpSRem
	// OpZAdd is a ZAdd command
	OpZAdd
	// OpZRem is a ZRem command
	OpZRem
)

func (t OpType) String() string {
	switch t {
	case OpSet:
		return "SET"
	case OpDel:
		return "DEL"
	case OpSAdd:
		return "SADD"
	case OpSRem:
		return "SREM"
	case OpZAdd:
		return "ZADD"
	case OpZRem:
		return "ZREM"
	}

	return "UNKNOWN"
}

// Op is one write command of a batch submitted to Client.Exec
type Op struct {
	Type    OpType
	Key     string
	Value   []byte
	TTL     time.Duration
	Members []string
	Score   int64
}

// SetOp builds a Set command
func SetOp(key string, value []byte, ttl time.Duration) Op {
	return Op{Type: OpSet, Key: key, Value: value, TTL: ttl}
}

// DelOp builds a Del command
func DelOp(key string) Op {
	return Op{Type: OpDel, Key: key}
}

// SAddOp builds an SAdd command
func SAddOp(key string, members ...string) Op {
	return Op{Type: OpSAdd, Key: key, Members: members}
}

// SRemOp builds an SRem command
func SRemOp(key string, members ...string) Op {
	return Op{Type: OpSRem, Key: key, Members: members}
}

// ZAddOp builds a ZAdd command
func ZAddOp(key string, score int64, member string) Op {
	return Op{Type: OpZAdd, Key: key, Score: score, Members: []string{member}}
}

// ZRemOp builds a ZRem command
func ZRemOp(key string, members ...string) Op {
	return Op{Type: OpZRem, Key: key, Members: members}
}
