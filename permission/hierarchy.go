package permission

import (
	"strings"

	"github.com/gobwas/glob"
)

// Separator splits object ids into hierarchy levels
const Separator = "/"

// Ancestors returns object followed by every ancestor of object,
// from the nearest to the farthest. An ancestor is a prefix of
// object that ends right before a separator. The empty root is
// not an ancestor.
//
//	Ancestors("bucket/a/collection/b") = [bucket/a/collection/b bucket/a/collection bucket/a bucket]
func Ancestors(object string) []string {
	levels := []string{object}

	for i := strings.LastIndex(object, Separator); i > 0; i = strings.LastIndex(object[:i], Separator) {
		levels = append(levels, object[:i])
	}

	return levels
}

// covers returns true if object is prefix itself or, unless
// prefix ends with a separator, one of its descendants. A
// prefix ending with a separator covers descendants only.
func covers(prefix, object string) bool {
	if strings.HasSuffix(prefix, Separator) {
		return strings.HasPrefix(object, prefix)
	}

	return object == prefix || strings.HasPrefix(object, prefix+Separator)
}

// compileObjectPattern compiles an object id in which each *
// stands for exactly one non-empty hierarchy level
func compileObjectPattern(pattern string) (glob.Glob, error) {
	parts := strings.Split(pattern, "*")

	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}

	// "?*" keeps * from matching an empty level
	return glob.Compile(strings.Join(parts, "?*"), '/')
}
