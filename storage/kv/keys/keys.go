// Package keys names every key the backends store. Names are
// built from escaped components joined by ':' so that distinct
// coordinates never produce the same key and every key can be
// parsed back into the coordinates that produced it.
package keys

import (
	"strings"
)

// Kind is the first component of every key. It keeps the
// key spaces of the backends apart when they share a store.
type Kind string

const (
	// KindStorage prefixes storage backend keys
	KindStorage Kind = "storage"
	// KindCache prefixes cache backend keys
	KindCache Kind = "cache"
	// KindPermission prefixes permission backend keys
	KindPermission Kind = "permission"
	// KindEvents prefixes event queue keys
	KindEvents Kind = "events"
)

const separator = ":"

var (
	escaper   = strings.NewReplacer("%", "%25", ":", "%3A")
	unescaper = strings.NewReplacer("%3A", ":", "%25", "%")
)

// Escape encodes a key component so that it contains no separator
func Escape(component string) string {
	return escaper.Replace(component)
}

// Unescape reverses Escape
func Unescape(component string) string {
	return unescaper.Replace(component)
}

// Join escapes and joins components
func Join(components ...string) string {
	escaped := make([]string, len(components))

	for i, component := range components {
		escaped[i] = Escape(component)
	}

	return strings.Join(escaped, separator)
}

// Split splits a key into its unescaped components
func Split(key string) []string {
	components := strings.Split(key, separator)

	for i, component := range components {
		components[i] = Unescape(component)
	}

	return components
}

// Prefix returns the prefix shared by every key of this kind
func (kind Kind) Prefix() string {
	return string(kind) + separator
}
