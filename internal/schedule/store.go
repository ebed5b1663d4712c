// Package schedule owns the in-memory schedule state: the nested
// application -> environment -> host -> entries map, the snapshot/diff
// engine used for dirty-scope tracking, and best-effort local persistence.
//
// The package follows a single-writer model: one Store instance is owned by
// one session and mutated from one logical thread of control. There is no
// internal locking.
package schedule

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"powersched/internal/types"
)

// LocalStore is the durable local cache behind the Store and Snapshot.
// Persistence is best-effort: failures are logged by the callers and never
// roll back in-memory state.
type LocalStore interface {
	SaveSchedules(m types.ScheduleMap) error
	LoadSchedules() (types.ScheduleMap, error)
	SaveSnapshot(m types.ScheduleMap) error
	LoadSnapshot() (types.ScheduleMap, error)
	SaveNotes(notes map[string][]types.Note) error
	LoadNotes() (map[string][]types.Note, error)
	Close() error
}

// Store holds the authoritative schedule map and per-host notes for one
// session. Construct with New and load persisted state with Load.
type Store struct {
	local  LocalStore
	logger *slog.Logger

	schedules types.ScheduleMap
	notes     map[string][]types.Note
}

// New creates an empty Store backed by the given local cache. The local
// store may be nil, in which case persistence is disabled entirely.
func New(local LocalStore, logger *slog.Logger) *Store {
	return &Store{
		local:     local,
		logger:    logger,
		schedules: make(types.ScheduleMap),
		notes:     make(map[string][]types.Note),
	}
}

// Load restores schedules and notes from the local cache. Missing or
// unreadable state leaves the store empty; load problems are logged, not
// returned, because the local cache is an optimization rather than a source
// of truth.
func (s *Store) Load() {
	if s.local == nil {
		return
	}
	m, err := s.local.LoadSchedules()
	if err != nil {
		s.logger.Warn("could not restore schedules from local store", "error", err)
	} else if m != nil {
		s.schedules = m
	}
	notes, err := s.local.LoadNotes()
	if err != nil {
		s.logger.Warn("could not restore notes from local store", "error", err)
	} else if notes != nil {
		s.notes = notes
	}
}

// Map exposes the raw schedule map for diffing. Callers must treat it as
// read-only; the diff engine never mutates it.
func (s *Store) Map() types.ScheduleMap {
	return s.schedules
}

// Entries returns a copy of the host's entry list, empty when the host has
// no schedules.
func (s *Store) Entries(app, env, host string) []types.ScheduleEntry {
	list := s.hostEntries(app, env, host)
	out := make([]types.ScheduleEntry, len(list))
	copy(out, list)
	return out
}

// AddEntry validates the entry data, assigns a fresh ID, appends it to the
// host's list, and persists. The returned ID is stable across later edits.
func (s *Store) AddEntry(app, env, host string, e types.ScheduleEntry) (string, error) {
	if err := validateEntry(e); err != nil {
		return "", err
	}
	e = normalizeEntry(e)
	e.ID = uuid.NewString()

	s.ensureScope(app, env)
	s.schedules[app][env][host] = append(s.schedules[app][env][host], e)
	s.persist()
	return e.ID, nil
}

// UpdateEntry replaces the fields of the entry matching id, preserving the
// ID and any environment-group membership. Unknown IDs are a no-op.
func (s *Store) UpdateEntry(app, env, host, id string, e types.ScheduleEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	list := s.hostEntries(app, env, host)
	for i := range list {
		if list[i].ID != id {
			continue
		}
		updated := normalizeEntry(e)
		updated.ID = id
		updated.EnvGroupID = list[i].EnvGroupID
		list[i] = updated
		s.persist()
		return nil
	}
	return nil
}

// RemoveEntry deletes the entry matching id. When the host's list becomes
// empty the host key is deleted entirely: absence of a key means "no
// schedules", and the diff and stats logic depend on that sparseness.
func (s *Store) RemoveEntry(app, env, host, id string) {
	list := s.hostEntries(app, env, host)
	for i := range list {
		if list[i].ID != id {
			continue
		}
		s.setHostEntries(app, env, host, append(list[:i:i], list[i+1:]...))
		s.persist()
		return
	}
}

// RemoveHost deletes every entry for the host.
func (s *Store) RemoveHost(app, env, host string) {
	s.setHostEntries(app, env, host, nil)
	s.persist()
}

// AddEntryForEnv fans the entry out to every given host under one fresh
// group ID and returns it. Each member entry gets its own ID.
func (s *Store) AddEntryForEnv(app, env string, hosts []string, e types.ScheduleEntry) (string, error) {
	if err := validateEntry(e); err != nil {
		return "", err
	}
	e = normalizeEntry(e)
	groupID := uuid.NewString()

	s.ensureScope(app, env)
	for _, host := range hosts {
		member := e
		member.ID = uuid.NewString()
		member.EnvGroupID = groupID
		member.Dates = append([]string(nil), e.Dates...)
		s.schedules[app][env][host] = append(s.schedules[app][env][host], member)
	}
	s.persist()
	return groupID, nil
}

// UpdateEnvGroup replaces the schedule fields of every entry in the scope
// carrying groupID, keeping each entry's ID and group membership. Hosts that
// were excluded from the group earlier are untouched.
func (s *Store) UpdateEnvGroup(app, env, groupID string, e types.ScheduleEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	e = normalizeEntry(e)
	for host, list := range s.scopeData(app, env) {
		for i := range list {
			if list[i].EnvGroupID != groupID {
				continue
			}
			updated := e
			updated.ID = list[i].ID
			updated.EnvGroupID = groupID
			updated.Dates = append([]string(nil), e.Dates...)
			list[i] = updated
		}
		s.schedules[app][env][host] = list
	}
	s.persist()
	return nil
}

// RemoveEnvGroup deletes every entry in the scope carrying groupID, pruning
// emptied hosts.
func (s *Store) RemoveEnvGroup(app, env, groupID string) {
	for host, list := range s.scopeData(app, env) {
		kept := list[:0:0]
		for _, entry := range list {
			if entry.EnvGroupID != groupID {
				kept = append(kept, entry)
			}
		}
		s.setHostEntries(app, env, host, kept)
	}
	s.persist()
}

// ExcludeFromEnvGroup strips a single host's group-tagged entry without
// touching the other members.
func (s *Store) ExcludeFromEnvGroup(app, env, host, groupID string) {
	list := s.hostEntries(app, env, host)
	kept := list[:0:0]
	for _, entry := range list {
		if entry.EnvGroupID != groupID {
			kept = append(kept, entry)
		}
	}
	s.setHostEntries(app, env, host, kept)
	s.persist()
}

// ReincludeInEnvGroup re-adds the group's entry to every listed host that no
// longer carries it. The schedule parameters are taken from a surviving
// member; if the group has no members left the call is a no-op.
func (s *Store) ReincludeInEnvGroup(app, env string, hosts []string, groupID string) {
	var template *types.ScheduleEntry
	for _, list := range s.scopeData(app, env) {
		for i := range list {
			if list[i].EnvGroupID == groupID {
				template = &list[i]
				break
			}
		}
		if template != nil {
			break
		}
	}
	if template == nil {
		return
	}

	s.ensureScope(app, env)
	for _, host := range hosts {
		if s.hostCarriesGroup(app, env, host, groupID) {
			continue
		}
		member := *template
		member.ID = uuid.NewString()
		member.Dates = append([]string(nil), template.Dates...)
		s.schedules[app][env][host] = append(s.schedules[app][env][host], member)
	}
	s.persist()
}

// EnvGroups reconstructs the environment-wide schedule groups of a scope by
// scanning for shared group IDs. totalMachines is the scope's machine count
// from the inventory, carried through so callers can show exclusions.
func (s *Store) EnvGroups(app, env string, totalMachines int) []types.EnvGroup {
	byID := make(map[string]*types.EnvGroup)
	for host, list := range s.scopeData(app, env) {
		for _, entry := range list {
			if entry.EnvGroupID == "" {
				continue
			}
			g, ok := byID[entry.EnvGroupID]
			if !ok {
				shared := entry
				shared.ID = ""
				g = &types.EnvGroup{
					GroupID:       entry.EnvGroupID,
					Entry:         shared,
					TotalMachines: totalMachines,
				}
				byID[entry.EnvGroupID] = g
			}
			g.Hostnames = append(g.Hostnames, host)
		}
	}

	groups := make([]types.EnvGroup, 0, len(byID))
	for _, g := range byID {
		sort.Strings(g.Hostnames)
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })
	return groups
}

// ReplaceScope overwrites the scope's per-host state from remote data:
// non-empty entry lists replace the host's list, empty lists delete the host
// key. Used by the bootstrap merge where the remote store wins.
func (s *Store) ReplaceScope(app, env string, data types.HostSchedules) {
	s.ensureScope(app, env)
	for host, entries := range data {
		s.setHostEntries(app, env, host, entries)
	}
	s.prune(app, env)
	s.persist()
}

// SetScope replaces the scope's entire state with the given data, dropping
// hosts absent from it. Empty data clears the scope. Used when the remote
// copy wins wholesale, as in bootstrap and refresh.
func (s *Store) SetScope(app, env string, data types.HostSchedules) {
	for host := range s.scopeData(app, env) {
		if _, ok := data[host]; !ok {
			delete(s.schedules[app][env], host)
		}
	}
	s.ensureScope(app, env)
	for host, entries := range data {
		s.setHostEntries(app, env, host, entries)
	}
	s.prune(app, env)
	s.persist()
}

// ScopeData returns a copy of the scope's per-host entry lists.
func (s *Store) ScopeData(app, env string) types.HostSchedules {
	out := make(types.HostSchedules)
	for host, list := range s.scopeData(app, env) {
		entries := make([]types.ScheduleEntry, len(list))
		copy(entries, list)
		out[host] = entries
	}
	return out
}

// ScheduledHosts counts the hosts in the scope that carry at least one entry.
func (s *Store) ScheduledHosts(app, env string) int {
	return len(s.scopeData(app, env))
}

// HasSchedules reports whether any host in the scope carries an entry.
func (s *Store) HasSchedules(app, env string) bool {
	return s.ScheduledHosts(app, env) > 0
}

// Scopes lists every (application, environment) pair present in the map,
// sorted.
func (s *Store) Scopes() []types.ScopeKey {
	var keys []types.ScopeKey
	for app, envs := range s.schedules {
		for env := range envs {
			keys = append(keys, types.ScopeKey{App: app, Env: env})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].App != keys[j].App {
			return keys[i].App < keys[j].App
		}
		return keys[i].Env < keys[j].Env
	})
	return keys
}

// Export flattens every schedule entry joined with its machine metadata.
func (s *Store) Export(machines []types.Machine) []types.ExportRecord {
	byHost := make(map[string]types.Machine, len(machines))
	for _, m := range machines {
		byHost[m.Hostname] = m
	}

	var records []types.ExportRecord
	for _, scope := range s.Scopes() {
		hosts := make([]string, 0)
		data := s.scopeData(scope.App, scope.Env)
		for host := range data {
			hosts = append(hosts, host)
		}
		sort.Strings(hosts)
		for _, host := range hosts {
			m := byHost[host]
			for _, e := range data[host] {
				records = append(records, types.ExportRecord{
					Application:  scope.App,
					Environment:  scope.Env,
					MachineName:  m.MachineName,
					Hostname:     host,
					ServerType:   m.ServerType,
					ScheduleType: string(e.Type),
					StartTime:    e.StartTime,
					StopTime:     e.StopTime,
					Recurring:    string(e.Recurring),
					Dates:        e.Dates,
				})
			}
		}
	}
	return records
}

// AddNote appends a free-text note for the host and persists it locally.
func (s *Store) AddNote(host, text string) types.Note {
	n := types.Note{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: types.RealClock{}.Now(),
	}
	s.notes[host] = append(s.notes[host], n)
	s.persistNotes()
	return n
}

// Notes returns the host's notes in insertion order.
func (s *Store) Notes(host string) []types.Note {
	out := make([]types.Note, len(s.notes[host]))
	copy(out, s.notes[host])
	return out
}

// RemoveNote deletes one note by ID.
func (s *Store) RemoveNote(host, id string) {
	list := s.notes[host]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.notes, host)
		} else {
			s.notes[host] = list
		}
		s.persistNotes()
		return
	}
}

// validateEntry enforces the write-path shape rules: an entry must apply to
// at least one day (a recurrence or explicit dates), and a window entry must
// carry both times.
func validateEntry(e types.ScheduleEntry) error {
	if e.Recurring == types.RecurNone && len(e.Dates) == 0 {
		return types.NewAppError(types.ErrCodeValidationNoOccurrence,
			"entry needs a recurrence or at least one explicit date", nil)
	}
	if e.Type == types.TypeWindow && (e.StartTime == "" || e.StopTime == "") {
		return types.NewAppError(types.ErrCodeValidationMissingTime,
			"window entry needs both a start and a stop time", nil)
	}
	return nil
}

// normalizeEntry clears fields that do not apply to the entry's shape: a
// recurring entry carries no explicit dates, a full-day shutdown carries no
// times. Explicit dates are kept sorted.
func normalizeEntry(e types.ScheduleEntry) types.ScheduleEntry {
	if e.Recurring != types.RecurNone {
		e.Dates = nil
	} else {
		dates := append([]string(nil), e.Dates...)
		sort.Strings(dates)
		e.Dates = dates
	}
	if e.Type == types.TypeShutdown {
		e.StartTime = ""
		e.StopTime = ""
	}
	e.Cronjobs = nil
	return e
}

func (s *Store) ensureScope(app, env string) {
	if s.schedules[app] == nil {
		s.schedules[app] = make(map[string]types.HostSchedules)
	}
	if s.schedules[app][env] == nil {
		s.schedules[app][env] = make(types.HostSchedules)
	}
}

func (s *Store) scopeData(app, env string) types.HostSchedules {
	envs, ok := s.schedules[app]
	if !ok {
		return nil
	}
	return envs[env]
}

func (s *Store) hostEntries(app, env, host string) []types.ScheduleEntry {
	return s.scopeData(app, env)[host]
}

// setHostEntries installs the host's entry list, deleting the key when the
// list is empty and pruning emptied scope levels.
func (s *Store) setHostEntries(app, env, host string, entries []types.ScheduleEntry) {
	if len(entries) == 0 {
		if data := s.scopeData(app, env); data != nil {
			delete(data, host)
		}
		s.prune(app, env)
		return
	}
	s.ensureScope(app, env)
	s.schedules[app][env][host] = entries
}

func (s *Store) prune(app, env string) {
	envs, ok := s.schedules[app]
	if !ok {
		return
	}
	if data, ok := envs[env]; ok && len(data) == 0 {
		delete(envs, env)
	}
	if len(envs) == 0 {
		delete(s.schedules, app)
	}
}

func (s *Store) persist() {
	if s.local == nil {
		return
	}
	if err := s.local.SaveSchedules(s.schedules); err != nil {
		s.logger.Warn("could not persist schedules to local store", "error", err)
	}
}

func (s *Store) persistNotes() {
	if s.local == nil {
		return
	}
	if err := s.local.SaveNotes(s.notes); err != nil {
		s.logger.Warn("could not persist notes to local store", "error", err)
	}
}

func (s *Store) hostCarriesGroup(app, env, host, groupID string) bool {
	for _, entry := range s.hostEntries(app, env, host) {
		if entry.EnvGroupID == groupID {
			return true
		}
	}
	return false
}
