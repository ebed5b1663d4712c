// Package access decides who may see and change which application's
// schedules. Identity comes from the OAuth exchange, authorization from a
// JSON user registry mapping people to roles and application grants.
package access

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"powersched/internal/types"
)

// Registry is the loaded user registry. Lookups are case-insensitive on the
// GitHub login, which is how identities arrive from the OAuth exchange.
type Registry struct {
	users   []types.UserRecord
	byLogin map[string]*types.UserRecord
}

// LoadRegistry reads the user registry from a JSON file holding a list of
// user records.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading user registry %s: %w", path, err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes a registry payload.
func ParseRegistry(raw []byte) (*Registry, error) {
	var users []types.UserRecord
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("decoding user registry: %w", err)
	}

	r := &Registry{
		users:   users,
		byLogin: make(map[string]*types.UserRecord, len(users)),
	}
	for i := range users {
		if login := strings.ToLower(users[i].GitHubUser); login != "" {
			r.byLogin[login] = &users[i]
		}
	}
	return r, nil
}

// FindByGitHub resolves a GitHub login to its registry record. Unknown
// logins yield ErrCodeAccessUserUnknown; such users never reach the
// schedule views.
func (r *Registry) FindByGitHub(login string) (*types.UserRecord, error) {
	if u, ok := r.byLogin[strings.ToLower(login)]; ok {
		return u, nil
	}
	return nil, types.NewAppError(types.ErrCodeAccessUserUnknown,
		fmt.Sprintf("github user %q is not in the user registry", login), nil)
}

// Users returns every record in registry order.
func (r *Registry) Users() []types.UserRecord {
	out := make([]types.UserRecord, len(r.users))
	copy(out, r.users)
	return out
}

// PermissionFor resolves the user's effective permission on one application.
//
//	Admin      -> read-write everywhere
//	Read-Only  -> read-only on granted applications, regardless of any
//	              explicit read-write grant
//	App owner  -> read-write on granted applications, unless an explicit
//	              grant narrows it to read-only
//
// Applications the grants do not name are invisible: PermNone.
func PermissionFor(u *types.UserRecord, app string) types.Permission {
	if u.Role == types.RoleAdmin {
		return types.PermReadWrite
	}
	if !u.Applications.Lists(app) {
		return types.PermNone
	}
	if u.Role == types.RoleReadOnly {
		return types.PermReadOnly
	}
	if explicit := u.Applications.Explicit(app); explicit != types.PermNone {
		return explicit
	}
	return types.PermReadWrite
}

// CanRead reports whether the user may see the application at all.
func CanRead(u *types.UserRecord, app string) bool {
	return PermissionFor(u, app) != types.PermNone
}

// CanWrite reports whether the user may change the application's schedules.
func CanWrite(u *types.UserRecord, app string) bool {
	return PermissionFor(u, app) == types.PermReadWrite
}

// VisibleApplications filters the inventory's application list down to what
// the user may see, preserving order.
func VisibleApplications(u *types.UserRecord, apps []string) []string {
	var out []string
	for _, app := range apps {
		if CanRead(u, app) {
			out = append(out, app)
		}
	}
	return out
}
