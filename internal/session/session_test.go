package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powersched/internal/audit"
	"powersched/internal/inventory"
	"powersched/internal/schedule"
	"powersched/internal/types"
)

// fakeRemote is an in-memory remote schedule store. Keys listed in failKeys
// reject saves; block, when set, holds SaveMultiple until released so tests
// can overlap two Save calls.
type fakeRemote struct {
	mu       sync.Mutex
	items    map[string]types.HostSchedules
	failKeys map[string]bool
	saves    []types.SaveRequest
	block    chan struct{}
	entered  chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		items:    make(map[string]types.HostSchedules),
		failKeys: make(map[string]bool),
	}
}

func (f *fakeRemote) FetchAll(_ context.Context, keys []string) (map[string]types.HostSchedules, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]types.HostSchedules, len(keys))
	for _, key := range keys {
		if data, ok := f.items[key]; ok {
			out[key] = data
		} else {
			out[key] = make(types.HostSchedules)
		}
	}
	return out, nil
}

func (f *fakeRemote) SaveMultiple(_ context.Context, changes []types.ScopeChange, user string) []types.SaveResult {
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	results := make([]types.SaveResult, 0, len(changes))
	for _, change := range changes {
		key := change.Scope.RemoteKey()
		f.saves = append(f.saves, types.SaveRequest{Key: key, Data: change.Data, User: user})
		if f.failKeys[key] {
			results = append(results, types.SaveResult{Key: key, Err: types.NewAppError(types.ErrCodeRemoteStatus, "save rejected", nil)})
			continue
		}
		f.items[key] = change.Data
		results = append(results, types.SaveResult{Key: key, Err: nil})
	}
	return results
}

var testMachines = []types.Machine{
	{Hostname: "bill-p1", Application: "Billing", Environment: "prod"},
	{Hostname: "bill-p2", Application: "Billing", Environment: "prod"},
	{Hostname: "bill-d1", Application: "Billing", Environment: "dev"},
	{Hostname: "crm-d1", Application: "CRM", Environment: "dev"},
}

func adminUser() *types.UserRecord {
	return &types.UserRecord{ID: "u1", Name: "Ada Admin", Role: types.RoleAdmin, Applications: types.AppGrants{All: true}}
}

func newTestSession(t *testing.T, remote RemoteClient, user *types.UserRecord) *Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := schedule.New(nil, logger)
	snap := schedule.NewSnapshot(nil, logger)
	inv := inventory.New(testMachines)
	return New(store, snap, remote, inv, user, audit.NewTrail(100), logger)
}

func windowEntry() types.ScheduleEntry {
	return types.ScheduleEntry{
		Type:      types.TypeWindow,
		StartTime: "08:00",
		StopTime:  "20:00",
		Recurring: types.RecurWeekdays,
	}
}

func TestBootstrap_RemoteWinsWhenNonEmpty(t *testing.T) {
	remote := newFakeRemote()
	remote.items["Billing_prod"] = types.HostSchedules{
		"bill-p1": {{ID: "r1", Type: types.TypeShutdown, Recurring: types.RecurDaily}},
	}

	sess := newTestSession(t, remote, adminUser())
	// Stale local edit in the same scope; the remote copy must replace it.
	_, err := sess.AddEntry("Billing", "prod", "bill-p2", windowEntry())
	require.NoError(t, err)

	require.NoError(t, sess.Bootstrap(context.Background()))

	entries, err := sess.Entries("Billing", "prod", "bill-p1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r1", entries[0].ID)

	stale, err := sess.Entries("Billing", "prod", "bill-p2")
	require.NoError(t, err)
	assert.Empty(t, stale, "hosts unknown to the remote copy are dropped")
	assert.False(t, sess.HasUnsaved())
}

func TestBootstrap_SeedsEmptyRemote(t *testing.T) {
	remote := newFakeRemote()
	sess := newTestSession(t, remote, adminUser())
	_, err := sess.AddEntry("CRM", "dev", "crm-d1", windowEntry())
	require.NoError(t, err)

	require.NoError(t, sess.Bootstrap(context.Background()))

	require.NotEmpty(t, remote.saves, "an empty remote store must be seeded during bootstrap")
	assert.Equal(t, "u1", remote.saves[0].User, "seed saves carry the user ID")
	assert.Len(t, remote.items["CRM_dev"]["crm-d1"], 1)

	entries, err := sess.Entries("CRM", "dev", "crm-d1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, sess.HasUnsaved(), "seeded scopes are absorbed into the snapshot")
}

func TestBootstrap_SeedFailureKeepsScopeDirty(t *testing.T) {
	remote := newFakeRemote()
	remote.failKeys["CRM_dev"] = true
	sess := newTestSession(t, remote, adminUser())
	_, err := sess.AddEntry("CRM", "dev", "crm-d1", windowEntry())
	require.NoError(t, err)

	require.NoError(t, sess.Bootstrap(context.Background()))

	assert.True(t, sess.HasUnsaved(), "a failed seed save must leave the scope dirty")
	entries, err := sess.Entries("CRM", "dev", "crm-d1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "local state survives a failed seed")
}

func TestBootstrap_NoSeedWhenRemoteHasData(t *testing.T) {
	remote := newFakeRemote()
	remote.items["Billing_prod"] = types.HostSchedules{
		"bill-p1": {{ID: "r1", Type: types.TypeShutdown, Recurring: types.RecurDaily}},
	}
	sess := newTestSession(t, remote, adminUser())
	_, err := sess.AddEntry("CRM", "dev", "crm-d1", windowEntry())
	require.NoError(t, err)

	require.NoError(t, sess.Bootstrap(context.Background()))

	assert.Empty(t, remote.saves, "a populated remote store is never written during bootstrap")
	assert.True(t, sess.HasUnsaved(), "the unseen scope stays dirty until the first save")
}

func TestSave_RoundTripConverges(t *testing.T) {
	remote := newFakeRemote()
	sess := newTestSession(t, remote, adminUser())
	require.NoError(t, sess.Bootstrap(context.Background()))

	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	require.NoError(t, err)

	report, err := sess.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, report.AllSucceeded())
	assert.False(t, sess.HasUnsaved())
	require.NotEmpty(t, remote.saves)
	assert.Equal(t, "u1", remote.saves[0].User, "the save protocol carries the user ID, not the display name")

	// A fresh session bootstrapping from the same remote sees the same state.
	sess2 := newTestSession(t, remote, adminUser())
	require.NoError(t, sess2.Bootstrap(context.Background()))
	entries, err := sess2.Entries("Billing", "prod", "bill-p1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, sess2.HasUnsaved())
}

func TestSave_CleanSessionPushesNothing(t *testing.T) {
	remote := newFakeRemote()
	sess := newTestSession(t, remote, adminUser())
	require.NoError(t, sess.Bootstrap(context.Background()))

	report, err := sess.Save(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean)
	assert.Empty(t, remote.saves)
}

func TestSave_PartialFailureKeepsOnlyFailedScopesDirty(t *testing.T) {
	remote := newFakeRemote()
	remote.failKeys["Billing_prod"] = true

	sess := newTestSession(t, remote, adminUser())
	require.NoError(t, sess.Bootstrap(context.Background()))
	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	require.NoError(t, err)
	_, err = sess.AddEntry("CRM", "dev", "crm-d1", windowEntry())
	require.NoError(t, err)

	report, err := sess.Save(context.Background())
	require.NoError(t, err)
	assert.False(t, report.AllSucceeded())

	dirty := sess.DirtyScopes()
	require.Len(t, dirty, 1, "succeeded scope was absorbed into the baseline")
	assert.Equal(t, types.ScopeKey{App: "Billing", Env: "prod"}, dirty[0].Scope)
}

func TestSave_SecondSaveWhileInFlightFailsFast(t *testing.T) {
	remote := newFakeRemote()
	remote.block = make(chan struct{})
	remote.entered = make(chan struct{})

	sess := newTestSession(t, remote, adminUser())
	require.NoError(t, sess.Bootstrap(context.Background()))
	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := sess.Save(context.Background())
		firstDone <- err
	}()

	// Wait until the first save holds the gate and is inside the remote call.
	select {
	case <-remote.entered:
	case <-time.After(time.Second):
		t.Fatal("first save never reached the remote store")
	}

	_, err = sess.Save(context.Background())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeBusySaveInFlight, appErr.Code)

	close(remote.block)
	require.NoError(t, <-firstDone)
}

func TestSave_RefusesScopesWithoutWriteAccess(t *testing.T) {
	remote := newFakeRemote()
	user := &types.UserRecord{
		ID: "u2", Name: "Nia Narrow", Role: types.RoleAppOwner,
		Applications: types.AppGrants{Perms: map[string]types.Permission{
			"Billing": types.PermReadWrite,
			"CRM":     types.PermReadOnly,
		}},
	}
	sess := newTestSession(t, remote, user)
	require.NoError(t, sess.Bootstrap(context.Background()))

	// Seed a dirty CRM scope behind the session's back, as if restored from
	// a stale local cache.
	sess.store.ReplaceScope("CRM", "dev", types.HostSchedules{
		"crm-d1": {{ID: "x", Type: types.TypeShutdown, Recurring: types.RecurDaily}},
	})
	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	require.NoError(t, err)

	report, err := sess.Save(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	byKey := make(map[string]error)
	for _, res := range report.Results {
		byKey[res.Key] = res.Err
	}
	assert.NoError(t, byKey["Billing_prod"])
	var appErr *types.AppError
	require.ErrorAs(t, byKey["CRM_dev"], &appErr)
	assert.Equal(t, types.ErrCodeAccessReadOnly, appErr.Code)

	for _, save := range remote.saves {
		assert.NotEqual(t, "CRM_dev", save.Key, "refused scope must not reach the remote store")
	}
}

func TestMutations_PermissionBackstop(t *testing.T) {
	user := &types.UserRecord{
		ID: "u3", Name: "Rae Reader", Role: types.RoleReadOnly,
		Applications: types.AppGrants{All: true},
	}
	sess := newTestSession(t, newFakeRemote(), user)

	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAccessReadOnly, appErr.Code)

	err = sess.RemoveHost("Billing", "prod", "bill-p1")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAccessReadOnly, appErr.Code)
}

func TestAddEntryForEnv_UsesInventoryMachines(t *testing.T) {
	sess := newTestSession(t, newFakeRemote(), adminUser())

	groupID, err := sess.AddEntryForEnv("Billing", "prod", windowEntry())
	require.NoError(t, err)

	groups, err := sess.EnvGroups("Billing", "prod")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, groupID, groups[0].GroupID)
	assert.Equal(t, []string{"bill-p1", "bill-p2"}, groups[0].Hostnames)
	assert.Equal(t, 2, groups[0].TotalMachines)
}

func TestAddEntryForEnv_EmptyScope(t *testing.T) {
	sess := newTestSession(t, newFakeRemote(), adminUser())

	_, err := sess.AddEntryForEnv("CRM", "prod", windowEntry())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundScope, appErr.Code)
}

func TestRefresh_DiscardsLocalEdits(t *testing.T) {
	remote := newFakeRemote()
	remote.items["Billing_prod"] = types.HostSchedules{
		"bill-p1": {{ID: "r1", Type: types.TypeShutdown, Recurring: types.RecurDaily}},
	}
	sess := newTestSession(t, remote, adminUser())
	require.NoError(t, sess.Bootstrap(context.Background()))

	_, err := sess.AddEntry("Billing", "prod", "bill-p2", windowEntry())
	require.NoError(t, err)
	require.True(t, sess.HasUnsaved())

	require.NoError(t, sess.Refresh(context.Background()))

	assert.False(t, sess.HasUnsaved())
	entries, err := sess.Entries("Billing", "prod", "bill-p2")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExport_FiltersInvisibleApplications(t *testing.T) {
	user := &types.UserRecord{
		ID: "u2", Name: "Omar Owner", Role: types.RoleAppOwner,
		Applications: types.AppGrants{Perms: map[string]types.Permission{"Billing": types.PermNone}},
	}
	sess := newTestSession(t, newFakeRemote(), user)
	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	require.NoError(t, err)
	sess.store.ReplaceScope("CRM", "dev", types.HostSchedules{
		"crm-d1": {{ID: "x", Type: types.TypeShutdown, Recurring: types.RecurDaily}},
	})

	records := sess.Export()
	require.Len(t, records, 1)
	assert.Equal(t, "Billing", records[0].Application)
}

func TestAuditTrail_RecordsMutations(t *testing.T) {
	sess := newTestSession(t, newFakeRemote(), adminUser())
	_, err := sess.AddEntry("Billing", "prod", "bill-p1", windowEntry())
	require.NoError(t, err)

	events := sess.AuditTrail()
	require.Len(t, events, 1)
	assert.Equal(t, "add_entry", events[0].Action)
	assert.Equal(t, "Ada Admin", events[0].User)
	assert.Equal(t, "bill-p1", events[0].Host)
}

func TestNotes_LocalOnlyLifecycle(t *testing.T) {
	sess := newTestSession(t, newFakeRemote(), adminUser())

	note := sess.AddNote("bill-p1", "drains slowly, shut down last")
	require.NotEmpty(t, note.ID)

	notes := sess.Notes("bill-p1")
	require.Len(t, notes, 1)
	assert.Equal(t, "drains slowly, shut down last", notes[0].Text)

	assert.False(t, sess.HasUnsaved(), "notes never dirty a scope")

	sess.RemoveNote("bill-p1", note.ID)
	assert.Empty(t, sess.Notes("bill-p1"))

	actions := make([]string, 0, 2)
	for _, ev := range sess.AuditTrail() {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []string{"remove_note", "add_note"}, actions, "trail is newest first")
}
