package keys

import (
	"strings"
)

const (
	tagACE       = "ace"
	tagPrincipal = "principal"
	tagUser      = "user"
)

// ACE is the set of principals granted permission on object
func ACE(object, permission string) string {
	return Join(string(KindPermission), tagACE, object, permission)
}

// ACEObjectPrefix is shared by the ACE keys of exactly this object
func ACEObjectPrefix(object string) string {
	return Join(string(KindPermission), tagACE, object) + separator
}

// ACEIDPrefix is shared by the ACE keys of every object whose id starts with idPrefix
func ACEIDPrefix(idPrefix string) string {
	return Join(string(KindPermission), tagACE, idPrefix)
}

// ParseACE returns the object and permission of an ACE key
func ParseACE(key string) (object string, permission string, ok bool) {
	if !strings.HasPrefix(key, KindPermission.Prefix()) {
		return "", "", false
	}

	components := Split(key)

	if len(components) != 4 || components[1] != tagACE {
		return "", "", false
	}

	return components[2], components[3], true
}

// Principal is the set of ACE members (see ACEMember) granted to principal
func Principal(principal string) string {
	return Join(string(KindPermission), tagPrincipal, principal)
}

// ACEMember names an (object, permission) pair inside a Principal set
func ACEMember(object, permission string) string {
	return Join(object, permission)
}

// ParseACEMember reverses ACEMember
func ParseACEMember(member string) (object string, permission string, ok bool) {
	components := Split(member)

	if len(components) != 2 {
		return "", "", false
	}

	return components[0], components[1], true
}

// User is the set of principals a user belongs to
func User(user string) string {
	return Join(string(KindPermission), tagUser, user)
}

// UserPrefix is shared by every User key
func UserPrefix() string {
	return Join(string(KindPermission), tagUser) + separator
}
