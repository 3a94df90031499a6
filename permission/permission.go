// Package permission keeps access control lists on top of a KV store.
//
// Every grant is indexed twice: the ACE set of (object, permission)
// holds its principals and the set of each principal holds its
// (object, permission) pairs. Both sides are always written in one
// atomic batch so readers of either index never see half a grant.
package permission

import (
	"context"
	"sort"

	"github.com/gobwas/glob"
	"github.com/jrife/kvbackend/storage/kv"
	"github.com/jrife/kvbackend/storage/kv/keys"
	"github.com/jrife/kvbackend/utils/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SystemAuthenticated is the user whose principals every
// authenticated user inherits
const SystemAuthenticated = "system.Authenticated"

const flushBatchSize = 1000

// ErrBackendUnavailable is returned when the KV store fails
var ErrBackendUnavailable = kv.ErrUnavailable

// Config contains configuration for a Backend
type Config struct {
	Client kv.Client
	Logger *zap.Logger
}

// Backend is the permission backend
type Backend struct {
	client kv.Client
	logger *zap.Logger
}

// BoundPermission restricts GetAccessibleObjects to a permission
// on objects matching Object. Each * in Object matches one
// hierarchy level.
type BoundPermission struct {
	Object     string
	Permission string
}

// New creates a permission backend over the KV store in config
func New(config Config) *Backend {
	backend := &Backend{client: config.Client, logger: config.Logger}

	if backend.logger == nil {
		backend.logger = zap.L()
	}

	return backend
}

func (backend *Backend) fail(logger *zap.Logger, err error, msg string) error {
	if errors.Is(err, kv.ErrUnavailable) {
		logger.Error(msg, zap.Error(err))
	}

	return errors.Wrap(err, msg)
}

func sorted(members []string) []string {
	if members == nil {
		members = []string{}
	}

	sort.Strings(members)

	return members
}

// AddPrincipalToACE grants permission on object to principal.
// Granting twice is a no-op.
func (backend *Backend) AddPrincipalToACE(ctx context.Context, object, permission, principal string) error {
	logger := log.Operation(ctx, backend.logger, "AddPrincipalToACE")
	logger.Debug("start", zap.String("object", object), zap.String("permission", permission), zap.String("principal", principal))

	err := backend.client.Exec(ctx,
		kv.SAddOp(keys.ACE(object, permission), principal),
		kv.SAddOp(keys.Principal(principal), keys.ACEMember(object, permission)),
	)

	if err != nil {
		return backend.fail(logger, err, "could not add principal to ace")
	}

	logger.Debug("return")

	return nil
}

// RemovePrincipalFromACE revokes permission on object from
// principal. Revoking a permission that was not granted is a no-op.
func (backend *Backend) RemovePrincipalFromACE(ctx context.Context, object, permission, principal string) error {
	logger := log.Operation(ctx, backend.logger, "RemovePrincipalFromACE")
	logger.Debug("start", zap.String("object", object), zap.String("permission", permission), zap.String("principal", principal))

	err := backend.client.Exec(ctx,
		kv.SRemOp(keys.ACE(object, permission), principal),
		kv.SRemOp(keys.Principal(principal), keys.ACEMember(object, permission)),
	)

	if err != nil {
		return backend.fail(logger, err, "could not remove principal from ace")
	}

	logger.Debug("return")

	return nil
}

// GetObjectPermissionPrincipals returns the principals granted
// permission on object itself, in ascending order
func (backend *Backend) GetObjectPermissionPrincipals(ctx context.Context, object, permission string) ([]string, error) {
	logger := log.Operation(ctx, backend.logger, "GetObjectPermissionPrincipals")

	principals, err := backend.client.SMembers(ctx, keys.ACE(object, permission))

	if err != nil {
		return nil, backend.fail(logger, err, "could not read ace")
	}

	return sorted(principals), nil
}

// GetAuthorizedPrincipals returns the principals granted
// permission on object or on one of its ancestors
func (backend *Backend) GetAuthorizedPrincipals(ctx context.Context, object, permission string) ([]string, error) {
	logger := log.Operation(ctx, backend.logger, "GetAuthorizedPrincipals")
	logger.Debug("start", zap.String("object", object), zap.String("permission", permission))

	levels := Ancestors(object)
	aces := make([]string, len(levels))

	for i, level := range levels {
		aces[i] = keys.ACE(level, permission)
	}

	principals, err := backend.client.SUnion(ctx, aces...)

	if err != nil {
		return nil, backend.fail(logger, err, "could not read aces")
	}

	logger.Debug("return", zap.Strings("principals", principals))

	return sorted(principals), nil
}

// GetBoundPrincipals returns the union of the principals
// granted each bound permission, without inheritance
func (backend *Backend) GetBoundPrincipals(ctx context.Context, bound []BoundPermission) ([]string, error) {
	logger := log.Operation(ctx, backend.logger, "GetBoundPrincipals")

	if len(bound) == 0 {
		return []string{}, nil
	}

	aces := make([]string, len(bound))

	for i, b := range bound {
		aces[i] = keys.ACE(b.Object, b.Permission)
	}

	principals, err := backend.client.SUnion(ctx, aces...)

	if err != nil {
		return nil, backend.fail(logger, err, "could not read aces")
	}

	return sorted(principals), nil
}

// Check walks object and then its ancestors, nearest first, and
// returns the first level granting permission to one of principals.
// ok is false when no level does.
func (backend *Backend) Check(ctx context.Context, object, permission string, principals []string) (grantedBy string, ok bool, err error) {
	logger := log.Operation(ctx, backend.logger, "Check")
	logger.Debug("start", zap.String("object", object), zap.String("permission", permission), zap.Strings("principals", principals))

	wanted := map[string]bool{}

	for _, principal := range principals {
		wanted[principal] = true
	}

	for _, level := range Ancestors(object) {
		members, err := backend.client.SMembers(ctx, keys.ACE(level, permission))

		if err != nil {
			return "", false, backend.fail(logger, err, "could not read ace")
		}

		for _, member := range members {
			if wanted[member] {
				logger.Debug("return", zap.String("grantedBy", level))

				return level, true, nil
			}
		}
	}

	logger.Debug("return", zap.Bool("ok", false))

	return "", false, nil
}

type compiledBound struct {
	pattern    glob.Glob
	permission string
}

// GetAccessibleObjects returns, for every object on which one of
// principals holds a permission, the permissions they hold. When
// bound is not empty only grants matching one of its entries are
// returned. withChildren extends each bound entry to the
// descendants of the objects it matches.
func (backend *Backend) GetAccessibleObjects(ctx context.Context, principals []string, bound []BoundPermission, withChildren bool) (map[string][]string, error) {
	logger := log.Operation(ctx, backend.logger, "GetAccessibleObjects")
	logger.Debug("start", zap.Strings("principals", principals), zap.Any("bound", bound), zap.Bool("withChildren", withChildren))

	compiled := make([]compiledBound, len(bound))

	for i, b := range bound {
		pattern, err := compileObjectPattern(b.Object)

		if err != nil {
			return nil, errors.Wrapf(err, "could not compile object pattern %q", b.Object)
		}

		compiled[i] = compiledBound{pattern: pattern, permission: b.Permission}
	}

	accessible := map[string][]string{}

	if len(principals) == 0 {
		return accessible, nil
	}

	reverse := make([]string, len(principals))

	for i, principal := range principals {
		reverse[i] = keys.Principal(principal)
	}

	members, err := backend.client.SUnion(ctx, reverse...)

	if err != nil {
		return nil, backend.fail(logger, err, "could not read principal grants")
	}

	for _, member := range members {
		object, permission, ok := keys.ParseACEMember(member)

		if !ok || !matchesBound(compiled, object, permission, withChildren) {
			continue
		}

		accessible[object] = append(accessible[object], permission)
	}

	for object := range accessible {
		sort.Strings(accessible[object])
	}

	logger.Debug("return", zap.Int("objects", len(accessible)))

	return accessible, nil
}

func matchesBound(bound []compiledBound, object, permission string, withChildren bool) bool {
	if len(bound) == 0 {
		return true
	}

	levels := []string{object}

	if withChildren {
		levels = Ancestors(object)
	}

	for _, b := range bound {
		if b.permission != permission {
			continue
		}

		for _, level := range levels {
			if b.pattern.Match(level) {
				return true
			}
		}
	}

	return false
}

// GetObjectsPermissions returns, for each object, the principals
// of each of its permissions. Only permissions is considered when
// it is not empty. Permissions without principals are omitted.
func (backend *Backend) GetObjectsPermissions(ctx context.Context, objects []string, permissions []string) ([]map[string][]string, error) {
	logger := log.Operation(ctx, backend.logger, "GetObjectsPermissions")
	logger.Debug("start", zap.Strings("objects", objects), zap.Strings("permissions", permissions))

	result := make([]map[string][]string, len(objects))

	for i, object := range objects {
		perms, err := backend.objectPermissions(ctx, object, permissions)

		if err != nil {
			return nil, backend.fail(logger, err, "could not read object permissions")
		}

		result[i] = perms
	}

	return result, nil
}

func (backend *Backend) objectPermissions(ctx context.Context, object string, permissions []string) (map[string][]string, error) {
	if len(permissions) == 0 {
		aces, err := backend.client.Keys(ctx, keys.ACEObjectPrefix(object))

		if err != nil {
			return nil, err
		}

		for _, ace := range aces {
			if _, permission, ok := keys.ParseACE(ace); ok {
				permissions = append(permissions, permission)
			}
		}
	}

	perms := map[string][]string{}

	for _, permission := range permissions {
		principals, err := backend.client.SMembers(ctx, keys.ACE(object, permission))

		if err != nil {
			return nil, err
		}

		if len(principals) > 0 {
			perms[permission] = sorted(principals)
		}
	}

	return perms, nil
}

// ReplaceObjectPermissions sets the principals of each permission
// in permissions on object. Permissions not in permissions are left
// alone. An empty principal list revokes the permission.
func (backend *Backend) ReplaceObjectPermissions(ctx context.Context, object string, permissions map[string][]string) error {
	logger := log.Operation(ctx, backend.logger, "ReplaceObjectPermissions")
	logger.Debug("start", zap.String("object", object), zap.Any("permissions", permissions))

	ops := []kv.Op{}

	for permission, principals := range permissions {
		ace := keys.ACE(object, permission)
		member := keys.ACEMember(object, permission)
		previous, err := backend.client.SMembers(ctx, ace)

		if err != nil {
			return backend.fail(logger, err, "could not read ace")
		}

		ops = append(ops, kv.DelOp(ace))

		for _, principal := range previous {
			ops = append(ops, kv.SRemOp(keys.Principal(principal), member))
		}

		if len(principals) == 0 {
			continue
		}

		ops = append(ops, kv.SAddOp(ace, principals...))

		for _, principal := range principals {
			ops = append(ops, kv.SAddOp(keys.Principal(principal), member))
		}
	}

	if err := backend.client.Exec(ctx, ops...); err != nil {
		return backend.fail(logger, err, "could not replace object permissions")
	}

	logger.Debug("return")

	return nil
}

// DeleteObjectPermissions revokes every grant on the objects
// covered by prefixes. A prefix covers the object it names and
// the descendants of that object. A prefix ending with the
// separator covers the descendants only.
func (backend *Backend) DeleteObjectPermissions(ctx context.Context, prefixes ...string) error {
	logger := log.Operation(ctx, backend.logger, "DeleteObjectPermissions")
	logger.Debug("start", zap.Strings("prefixes", prefixes))

	ops := []kv.Op{}
	seen := map[string]bool{}

	for _, prefix := range prefixes {
		aces, err := backend.client.Keys(ctx, keys.ACEIDPrefix(prefix))

		if err != nil {
			return backend.fail(logger, err, "could not list aces")
		}

		for _, ace := range aces {
			object, permission, ok := keys.ParseACE(ace)

			if !ok || seen[ace] || !covers(prefix, object) {
				continue
			}

			seen[ace] = true
			principals, err := backend.client.SMembers(ctx, ace)

			if err != nil {
				return backend.fail(logger, err, "could not read ace")
			}

			ops = append(ops, kv.DelOp(ace))

			for _, principal := range principals {
				ops = append(ops, kv.SRemOp(keys.Principal(principal), keys.ACEMember(object, permission)))
			}
		}
	}

	if err := backend.client.Exec(ctx, ops...); err != nil {
		return backend.fail(logger, err, "could not delete object permissions")
	}

	logger.Debug("return", zap.Int("aces", len(seen)))

	return nil
}

// AddUserPrincipal makes user a member of principal
func (backend *Backend) AddUserPrincipal(ctx context.Context, user, principal string) error {
	logger := log.Operation(ctx, backend.logger, "AddUserPrincipal")

	if _, err := backend.client.SAdd(ctx, keys.User(user), principal); err != nil {
		return backend.fail(logger, err, "could not add user principal")
	}

	return nil
}

// RemoveUserPrincipal removes user from principal
func (backend *Backend) RemoveUserPrincipal(ctx context.Context, user, principal string) error {
	logger := log.Operation(ctx, backend.logger, "RemoveUserPrincipal")

	if _, err := backend.client.SRem(ctx, keys.User(user), principal); err != nil {
		return backend.fail(logger, err, "could not remove user principal")
	}

	return nil
}

// GetUserPrincipals returns the principals of user along with
// those every authenticated user has
func (backend *Backend) GetUserPrincipals(ctx context.Context, user string) ([]string, error) {
	logger := log.Operation(ctx, backend.logger, "GetUserPrincipals")

	principals, err := backend.client.SUnion(ctx, keys.User(user), keys.User(SystemAuthenticated))

	if err != nil {
		return nil, backend.fail(logger, err, "could not read user principals")
	}

	return sorted(principals), nil
}

// RemovePrincipal removes principal from every user
func (backend *Backend) RemovePrincipal(ctx context.Context, principal string) error {
	logger := log.Operation(ctx, backend.logger, "RemovePrincipal")
	logger.Debug("start", zap.String("principal", principal))

	users, err := backend.client.Keys(ctx, keys.UserPrefix())

	if err != nil {
		return backend.fail(logger, err, "could not list users")
	}

	ops := make([]kv.Op, len(users))

	for i, user := range users {
		ops[i] = kv.SRemOp(user, principal)
	}

	if err := backend.client.Exec(ctx, ops...); err != nil {
		return backend.fail(logger, err, "could not remove principal")
	}

	logger.Debug("return", zap.Int("users", len(users)))

	return nil
}

// Flush erases every permission key, leaving storage and
// cache data in the same store untouched
func (backend *Backend) Flush(ctx context.Context) error {
	logger := log.Operation(ctx, backend.logger, "Flush")
	logger.Debug("start")

	all, err := backend.client.Keys(ctx, keys.KindPermission.Prefix())

	if err != nil {
		return backend.fail(logger, err, "could not list permission keys")
	}

	for start := 0; start < len(all); start += flushBatchSize {
		end := start + flushBatchSize

		if end > len(all) {
			end = len(all)
		}

		if _, err := backend.client.Del(ctx, all[start:end]...); err != nil {
			return backend.fail(logger, err, "could not delete permission keys")
		}
	}

	logger.Debug("return", zap.Int("deleted", len(all)))

	return nil
}
