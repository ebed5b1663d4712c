package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersched/internal/types"
)

const registryJSON = `[
	{"id":"u1","name":"Ada Admin","github_user":"ada","role":"Admin","applications":"*"},
	{"id":"u2","name":"Omar Owner","github_user":"omar","role":"Application_owner","applications":["Billing","CRM"]},
	{"id":"u3","name":"Nia Narrow","github_user":"nia","role":"Application_owner","applications":{"Billing":"rw","CRM":"ro"}},
	{"id":"u4","name":"Rae Reader","github_user":"rae","role":"Read-Only","applications":"*"}
]`

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := ParseRegistry([]byte(registryJSON))
	require.NoError(t, err)
	return r
}

func TestFindByGitHub_CaseInsensitive(t *testing.T) {
	r := loadTestRegistry(t)

	u, err := r.FindByGitHub("ADA")
	require.NoError(t, err)
	assert.Equal(t, "Ada Admin", u.Name)
}

func TestFindByGitHub_UnknownUser(t *testing.T) {
	r := loadTestRegistry(t)

	_, err := r.FindByGitHub("stranger")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAccessUserUnknown, appErr.Code)
}

func TestPermissionFor(t *testing.T) {
	r := loadTestRegistry(t)
	user := func(login string) *types.UserRecord {
		u, err := r.FindByGitHub(login)
		require.NoError(t, err)
		return u
	}

	tests := []struct {
		name  string
		login string
		app   string
		want  types.Permission
	}{
		{"admin has rw everywhere", "ada", "Anything", types.PermReadWrite},
		{"owner rw on listed app", "omar", "Billing", types.PermReadWrite},
		{"owner has no access to unlisted app", "omar", "Payroll", types.PermNone},
		{"explicit rw grant", "nia", "Billing", types.PermReadWrite},
		{"explicit ro grant narrows owner role", "nia", "CRM", types.PermReadOnly},
		{"read-only role capped at ro despite wildcard", "rae", "Billing", types.PermReadOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PermissionFor(user(tt.login), tt.app))
		})
	}
}

func TestCanReadCanWrite(t *testing.T) {
	r := loadTestRegistry(t)
	nia, err := r.FindByGitHub("nia")
	require.NoError(t, err)

	assert.True(t, CanRead(nia, "CRM"))
	assert.False(t, CanWrite(nia, "CRM"))
	assert.True(t, CanWrite(nia, "Billing"))
	assert.False(t, CanRead(nia, "Payroll"))
}

func TestVisibleApplications(t *testing.T) {
	r := loadTestRegistry(t)
	omar, err := r.FindByGitHub("omar")
	require.NoError(t, err)

	apps := []string{"Billing", "CRM", "Payroll"}
	assert.Equal(t, []string{"Billing", "CRM"}, VisibleApplications(omar, apps))
}

func TestParseRegistry_RejectsBadGrantShape(t *testing.T) {
	_, err := ParseRegistry([]byte(`[{"id":"u1","role":"Admin","applications":42}]`))
	assert.Error(t, err)
}
