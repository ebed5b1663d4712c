// Package session ties the schedule store, the snapshot engine, the remote
// sync client, and access control together into one user-facing workflow:
// bootstrap, edit, save, refresh. All mutations pass through the session's
// permission gate, which backstops whatever the calling surface enforces.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"powersched/internal/access"
	"powersched/internal/audit"
	"powersched/internal/inventory"
	"powersched/internal/schedule"
	"powersched/internal/types"
)

// RemoteClient is the remote schedule store surface the session needs.
type RemoteClient interface {
	FetchAll(ctx context.Context, keys []string) (map[string]types.HostSchedules, error)
	SaveMultiple(ctx context.Context, changes []types.ScopeChange, user string) []types.SaveResult
}

// SaveReport is the outcome of one Save call.
type SaveReport struct {
	Results []types.SaveResult
	// Clean is true when nothing was dirty to begin with.
	Clean bool
}

// AllSucceeded reports whether every pushed scope was accepted.
func (r SaveReport) AllSucceeded() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return false
		}
	}
	return true
}

// Session is one user's editing session. It is not safe for concurrent use
// except for Save, which serializes itself: a second Save while one is in
// flight fails fast instead of queueing.
type Session struct {
	store    *schedule.Store
	snapshot *schedule.Snapshot
	remote   RemoteClient
	inv      *inventory.Inventory
	user     *types.UserRecord
	trail    *audit.Trail
	logger   *slog.Logger

	saveGate *semaphore.Weighted
}

// New assembles a session for the given user.
func New(
	store *schedule.Store,
	snapshot *schedule.Snapshot,
	remote RemoteClient,
	inv *inventory.Inventory,
	user *types.UserRecord,
	trail *audit.Trail,
	logger *slog.Logger,
) *Session {
	return &Session{
		store:    store,
		snapshot: snapshot,
		remote:   remote,
		inv:      inv,
		user:     user,
		trail:    trail,
		logger:   logger,
		saveGate: semaphore.NewWeighted(1),
	}
}

// Bootstrap reconciles local state with the remote store at session start.
// Per scope, the remote copy wins when it has any data; a scope the remote
// store has never seen keeps its local state and stays dirty. When the
// remote store turns out entirely empty and local state is not, the local
// scopes are pushed right away so a brand-new remote side starts seeded;
// scopes whose seed save fails stay dirty for the next save.
func (s *Session) Bootstrap(ctx context.Context) error {
	scopes := s.inv.Scopes()
	keys := make([]string, len(scopes))
	byKey := make(map[string]types.ScopeKey, len(scopes))
	for i, scope := range scopes {
		keys[i] = scope.RemoteKey()
		byKey[scope.RemoteKey()] = scope
	}

	items, err := s.remote.FetchAll(ctx, keys)
	if err != nil {
		return fmt.Errorf("bootstrap fetch: %w", err)
	}

	baseline := make(types.ScheduleMap)
	for key, data := range items {
		scope, ok := byKey[key]
		if !ok {
			s.logger.Warn("remote store returned unknown key", "key", key)
			continue
		}
		if len(data) == 0 {
			continue
		}
		s.store.SetScope(scope.App, scope.Env, data)
		if baseline[scope.App] == nil {
			baseline[scope.App] = make(map[string]types.HostSchedules)
		}
		baseline[scope.App][scope.Env] = data
	}
	s.snapshot.Take(baseline)

	dirty := s.DirtyScopes()
	if len(dirty) == 0 {
		return nil
	}
	if len(baseline) > 0 {
		s.logger.Info("local schedules not yet on the remote store", "scopes", len(dirty))
		return nil
	}

	// Brand-new remote store: seed it with every non-empty local scope.
	results := s.remote.SaveMultiple(ctx, dirty, s.user.ID)
	failed := 0
	for i, res := range results {
		if res.Err != nil {
			failed++
			s.logger.Warn("seeding scope failed", "key", res.Key, "error", res.Err)
			continue
		}
		change := dirty[i]
		s.snapshot.AbsorbScope(change.Scope.App, change.Scope.Env, change.Data)
	}
	s.logger.Info("seeded remote store from local state",
		"scopes", len(dirty)-failed, "failed", failed)
	return nil
}

// Refresh discards local unsaved edits and re-seeds everything from the
// remote store, re-taking the snapshot.
func (s *Session) Refresh(ctx context.Context) error {
	scopes := s.inv.Scopes()
	keys := make([]string, len(scopes))
	for i, scope := range scopes {
		keys[i] = scope.RemoteKey()
	}

	items, err := s.remote.FetchAll(ctx, keys)
	if err != nil {
		return fmt.Errorf("refresh fetch: %w", err)
	}
	for _, scope := range scopes {
		s.store.SetScope(scope.App, scope.Env, items[scope.RemoteKey()])
	}
	s.snapshot.Take(s.store.Map())
	return nil
}

// Save pushes every dirty scope to the remote store. Scopes are saved
// sequentially and a per-scope failure does not stop the batch; scopes that
// made it are folded into the snapshot immediately, so only failed scopes
// stay dirty. Dirty scopes the user cannot write are refused without being
// pushed.
//
// Only one Save may run at a time; a concurrent call fails with
// ErrCodeBusySaveInFlight rather than queueing a stale second push.
func (s *Session) Save(ctx context.Context) (SaveReport, error) {
	if !s.saveGate.TryAcquire(1) {
		return SaveReport{}, types.NewAppError(types.ErrCodeBusySaveInFlight,
			"a save is already in flight", nil)
	}
	defer s.saveGate.Release(1)

	dirty := s.snapshot.Diff(s.store.Map())
	if len(dirty) == 0 {
		return SaveReport{Clean: true}, nil
	}

	var report SaveReport
	var pushable []types.ScopeChange
	for _, change := range dirty {
		if !access.CanWrite(s.user, change.Scope.App) {
			report.Results = append(report.Results, types.SaveResult{
				Key: change.Scope.RemoteKey(),
				Err: types.NewAppError(types.ErrCodeAccessReadOnly,
					fmt.Sprintf("no write access to %s", change.Scope.App), nil),
			})
			continue
		}
		pushable = append(pushable, change)
	}

	results := s.remote.SaveMultiple(ctx, pushable, s.user.ID)
	for i, res := range results {
		if res.Err == nil {
			change := pushable[i]
			s.snapshot.AbsorbScope(change.Scope.App, change.Scope.Env, change.Data)
		}
	}
	report.Results = append(report.Results, results...)

	s.trail.Record(s.user.Name, "save", "", "", "",
		fmt.Sprintf("%d scope(s) pushed", len(pushable)))
	return report, nil
}

// DirtyScopes returns the scopes changed since the last snapshot.
func (s *Session) DirtyScopes() []types.ScopeChange {
	return s.snapshot.Diff(s.store.Map())
}

// HasUnsaved reports whether any edit is pending.
func (s *Session) HasUnsaved() bool {
	return len(s.DirtyScopes()) > 0
}

// User returns the session's user record.
func (s *Session) User() *types.UserRecord {
	return s.user
}

// Applications lists the inventory applications visible to the user.
func (s *Session) Applications() []string {
	return access.VisibleApplications(s.user, s.inv.Applications())
}

// Entries returns a host's schedule entries, gated on read access.
func (s *Session) Entries(app, env, host string) ([]types.ScheduleEntry, error) {
	if err := s.requireRead(app); err != nil {
		return nil, err
	}
	return s.store.Entries(app, env, host), nil
}

// EnvGroups returns the scope's environment-wide schedule groups.
func (s *Session) EnvGroups(app, env string) ([]types.EnvGroup, error) {
	if err := s.requireRead(app); err != nil {
		return nil, err
	}
	return s.store.EnvGroups(app, env, len(s.inv.Machines(app, env))), nil
}

// AddEntry adds a schedule entry for one host.
func (s *Session) AddEntry(app, env, host string, e types.ScheduleEntry) (string, error) {
	if err := s.requireWrite(app); err != nil {
		return "", err
	}
	id, err := s.store.AddEntry(app, env, host, e)
	if err != nil {
		return "", err
	}
	s.trail.Record(s.user.Name, "add_entry", app, env, host, string(e.Type))
	return id, nil
}

// UpdateEntry edits one host's entry in place.
func (s *Session) UpdateEntry(app, env, host, id string, e types.ScheduleEntry) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	if err := s.store.UpdateEntry(app, env, host, id, e); err != nil {
		return err
	}
	s.trail.Record(s.user.Name, "update_entry", app, env, host, id)
	return nil
}

// RemoveEntry deletes one host's entry.
func (s *Session) RemoveEntry(app, env, host, id string) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	s.store.RemoveEntry(app, env, host, id)
	s.trail.Record(s.user.Name, "remove_entry", app, env, host, id)
	return nil
}

// RemoveHost deletes every entry for one host.
func (s *Session) RemoveHost(app, env, host string) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	s.store.RemoveHost(app, env, host)
	s.trail.Record(s.user.Name, "remove_host", app, env, host, "")
	return nil
}

// AddEntryForEnv fans the entry out to every machine currently in the scope.
func (s *Session) AddEntryForEnv(app, env string, e types.ScheduleEntry) (string, error) {
	if err := s.requireWrite(app); err != nil {
		return "", err
	}
	hosts := s.inv.Hostnames(app, env)
	if len(hosts) == 0 {
		return "", types.NewAppError(types.ErrCodeNotFoundScope,
			fmt.Sprintf("no machines in %s/%s", app, env), nil)
	}
	groupID, err := s.store.AddEntryForEnv(app, env, hosts, e)
	if err != nil {
		return "", err
	}
	s.trail.Record(s.user.Name, "add_env_group", app, env, "",
		fmt.Sprintf("%d host(s)", len(hosts)))
	return groupID, nil
}

// UpdateEnvGroup edits every member of an environment-wide group.
func (s *Session) UpdateEnvGroup(app, env, groupID string, e types.ScheduleEntry) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	if err := s.store.UpdateEnvGroup(app, env, groupID, e); err != nil {
		return err
	}
	s.trail.Record(s.user.Name, "update_env_group", app, env, "", groupID)
	return nil
}

// RemoveEnvGroup deletes an environment-wide group everywhere.
func (s *Session) RemoveEnvGroup(app, env, groupID string) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	s.store.RemoveEnvGroup(app, env, groupID)
	s.trail.Record(s.user.Name, "remove_env_group", app, env, "", groupID)
	return nil
}

// ExcludeFromEnvGroup removes one host from an environment-wide group.
func (s *Session) ExcludeFromEnvGroup(app, env, host, groupID string) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	s.store.ExcludeFromEnvGroup(app, env, host, groupID)
	s.trail.Record(s.user.Name, "exclude_from_group", app, env, host, groupID)
	return nil
}

// ReincludeInEnvGroup restores excluded machines to an environment-wide
// group, covering every machine currently in the scope.
func (s *Session) ReincludeInEnvGroup(app, env, groupID string) error {
	if err := s.requireWrite(app); err != nil {
		return err
	}
	s.store.ReincludeInEnvGroup(app, env, s.inv.Hostnames(app, env), groupID)
	s.trail.Record(s.user.Name, "reinclude_in_group", app, env, "", groupID)
	return nil
}

// Export produces the flattened schedule export for everything the user can
// see.
func (s *Session) Export() []types.ExportRecord {
	var visible []types.ExportRecord
	for _, rec := range s.store.Export(s.inv.All()) {
		if access.CanRead(s.user, rec.Application) {
			visible = append(visible, rec)
		}
	}
	return visible
}

// AuditTrail returns the session's audit events, newest first.
func (s *Session) AuditTrail() []audit.Event {
	return s.trail.Events()
}

// AddNote attaches a free-text note to a host. Notes are local only and
// never sync, so they need no write permission on the application.
func (s *Session) AddNote(host, text string) types.Note {
	note := s.store.AddNote(host, text)
	s.trail.Record(s.user.Name, "add_note", "", "", host, note.ID)
	return note
}

// Notes returns the notes attached to a host, in insertion order.
func (s *Session) Notes(host string) []types.Note {
	return s.store.Notes(host)
}

// RemoveNote deletes one note from a host.
func (s *Session) RemoveNote(host, id string) {
	s.store.RemoveNote(host, id)
	s.trail.Record(s.user.Name, "remove_note", "", "", host, id)
}

func (s *Session) requireRead(app string) error {
	if !access.CanRead(s.user, app) {
		return types.NewAppError(types.ErrCodeAccessDenied,
			fmt.Sprintf("no access to %s", app), nil)
	}
	return nil
}

func (s *Session) requireWrite(app string) error {
	if !access.CanWrite(s.user, app) {
		if access.CanRead(s.user, app) {
			return types.NewAppError(types.ErrCodeAccessReadOnly,
				fmt.Sprintf("read-only access to %s", app), nil)
		}
		return types.NewAppError(types.ErrCodeAccessDenied,
			fmt.Sprintf("no access to %s", app), nil)
	}
	return nil
}
