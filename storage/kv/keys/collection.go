package keys

import (
	"strings"
)

// Wildcard used as a parent id matches every parent.
const Wildcard = "*"

const (
	tagTimestamp    = "timestamp"
	tagRecords      = "records"
	tagIndex        = "index"
	tagDeletedIndex = "deleted-index"
	tagRecord       = "record"
	tagTombstone    = "tombstone"
)

// Collection identifies a group of records. Extra is an optional
// scoping key, empty for most collections.
type Collection struct {
	Resource string
	Parent   string
	Extra    string
}

// Prefix returns the prefix shared by every key of the collection.
// The three coordinates are always present so a collection without
// Extra never shares keys with one that has it.
func (c Collection) Prefix() string {
	return Join(string(KindStorage), c.Resource, c.Parent, c.Extra) + separator
}

// Timestamp is the string key holding the collection timestamp
func (c Collection) Timestamp() string {
	return c.Prefix() + tagTimestamp
}

// Records is the set of live record ids
func (c Collection) Records() string {
	return c.Prefix() + tagRecords
}

// Index is the sorted set of live record ids scored by last modified
func (c Collection) Index() string {
	return c.Prefix() + tagIndex
}

// DeletedIndex is the sorted set of tombstone ids scored by last modified
func (c Collection) DeletedIndex() string {
	return c.Prefix() + tagDeletedIndex
}

// Record is the string key holding the encoded record id
func (c Collection) Record(id string) string {
	return c.Prefix() + tagRecord + separator + Escape(id)
}

// Tombstone is the string key holding the tombstone of record id
func (c Collection) Tombstone(id string) string {
	return c.Prefix() + tagTombstone + separator + Escape(id)
}

// HasWildcard returns true if the collection spans several parents
// or several resources
func (c Collection) HasWildcard() bool {
	return c.Resource == "" || c.Parent == Wildcard
}

// ScanPrefix returns the narrowest key prefix shared by every
// collection c matches. It is c.Prefix() for a collection
// without wildcards.
func (c Collection) ScanPrefix() string {
	switch {
	case c.Resource == "":
		return KindStorage.Prefix()
	case c.Parent == Wildcard:
		return Join(string(KindStorage), c.Resource) + separator
	}

	return c.Prefix()
}

// Matches returns true if other is one of the collections c designates
func (c Collection) Matches(other Collection) bool {
	if c.Resource != "" && c.Resource != other.Resource {
		return false
	}

	if c.Parent != Wildcard && c.Parent != other.Parent {
		return false
	}

	return c.Extra == other.Extra || c.HasWildcard() && c.Extra == ""
}

// ParseIndexKey recognizes the Index or DeletedIndex key of a collection.
// deleted is true for a DeletedIndex key.
func ParseIndexKey(key string) (collection Collection, deleted bool, ok bool) {
	if !strings.HasPrefix(key, KindStorage.Prefix()) {
		return Collection{}, false, false
	}

	components := Split(key)

	if len(components) != 5 {
		return Collection{}, false, false
	}

	collection = Collection{Resource: components[1], Parent: components[2], Extra: components[3]}

	switch components[4] {
	case tagIndex:
		return collection, false, true
	case tagDeletedIndex:
		return collection, true, true
	}

	return Collection{}, false, false
}
