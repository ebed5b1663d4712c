package schedule

import (
	"encoding/json"
	"log/slog"
	"sort"

	"powersched/internal/types"
)

// Snapshot is the diff baseline: a deep copy of the schedule map as of the
// last successful sync. Comparing the live map against it yields the set of
// dirty scopes to push. The snapshot is persisted best-effort so a restarted
// session can resume dirty-tracking without refetching.
type Snapshot struct {
	local  LocalStore
	logger *slog.Logger
	data   types.ScheduleMap
}

// NewSnapshot creates an empty baseline. The local store may be nil.
func NewSnapshot(local LocalStore, logger *slog.Logger) *Snapshot {
	return &Snapshot{
		local:  local,
		logger: logger,
		data:   make(types.ScheduleMap),
	}
}

// Take replaces the baseline with a deep copy of the given map and persists
// it. Taken after bootstrap and after a fully successful save.
func (p *Snapshot) Take(m types.ScheduleMap) {
	p.data = cloneMap(m)
	p.persist()
}

// Restore loads a previously persisted baseline. Returns false when none
// exists or it cannot be read.
func (p *Snapshot) Restore() bool {
	if p.local == nil {
		return false
	}
	m, err := p.local.LoadSnapshot()
	if err != nil {
		p.logger.Warn("could not restore snapshot from local store", "error", err)
		return false
	}
	if m == nil {
		return false
	}
	p.data = m
	return true
}

// AbsorbScope folds one scope's freshly saved state into the baseline, so a
// partially failed batch save leaves only the failed scopes dirty. Empty
// data removes the scope from the baseline.
func (p *Snapshot) AbsorbScope(app, env string, data types.HostSchedules) {
	if len(data) == 0 {
		if envs, ok := p.data[app]; ok {
			delete(envs, env)
			if len(envs) == 0 {
				delete(p.data, app)
			}
		}
	} else {
		if p.data[app] == nil {
			p.data[app] = make(map[string]types.HostSchedules)
		}
		p.data[app][env] = cloneHosts(data)
	}
	p.persist()
}

// ScopeData returns the baseline's per-host state for one scope, never nil.
func (p *Snapshot) ScopeData(app, env string) types.HostSchedules {
	if envs, ok := p.data[app]; ok {
		if data, ok := envs[env]; ok {
			return data
		}
	}
	return make(types.HostSchedules)
}

// Diff compares the current map against the baseline and returns one
// ScopeChange per scope whose canonical JSON differs, sorted by scope key.
// Diff is pure: it mutates neither input nor baseline, and equal inputs
// yield an empty result regardless of how the state was arrived at.
func (p *Snapshot) Diff(current types.ScheduleMap) []types.ScopeChange {
	scopes := make(map[types.ScopeKey]struct{})
	collect := func(m types.ScheduleMap) {
		for app, envs := range m {
			for env := range envs {
				scopes[types.ScopeKey{App: app, Env: env}] = struct{}{}
			}
		}
	}
	collect(current)
	collect(p.data)

	var changes []types.ScopeChange
	for scope := range scopes {
		cur := scopeData(current, scope.App, scope.Env)
		base := p.ScopeData(scope.App, scope.Env)
		if canonical(cur) == canonical(base) {
			continue
		}

		change := types.ScopeChange{
			Scope: scope,
			Data:  cloneHosts(cur),
			Hosts: make(map[string]types.ChangeKind),
		}
		hosts := make(map[string]struct{})
		for h := range cur {
			hosts[h] = struct{}{}
		}
		for h := range base {
			hosts[h] = struct{}{}
		}
		for h := range hosts {
			c, inCur := cur[h]
			b, inBase := base[h]
			switch {
			case inCur && !inBase:
				change.Hosts[h] = types.ChangeAdded
				change.Added++
			case !inCur && inBase:
				change.Hosts[h] = types.ChangeRemoved
				change.Removed++
			case canonicalEntries(c) != canonicalEntries(b):
				change.Hosts[h] = types.ChangeUpdated
				change.Changed++
			}
		}
		changes = append(changes, change)
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Scope.App != changes[j].Scope.App {
			return changes[i].Scope.App < changes[j].Scope.App
		}
		return changes[i].Scope.Env < changes[j].Scope.Env
	})
	return changes
}

// HasChanges reports whether any scope is dirty.
func (p *Snapshot) HasChanges(current types.ScheduleMap) bool {
	return len(p.Diff(current)) > 0
}

func (p *Snapshot) persist() {
	if p.local == nil {
		return
	}
	if err := p.local.SaveSnapshot(p.data); err != nil {
		p.logger.Warn("could not persist snapshot to local store", "error", err)
	}
}

func scopeData(m types.ScheduleMap, app, env string) types.HostSchedules {
	if envs, ok := m[app]; ok {
		if data, ok := envs[env]; ok {
			return data
		}
	}
	return make(types.HostSchedules)
}

// canonical renders per-host data as deterministic JSON. encoding/json
// sorts map keys, and entry lists are order-sensitive arrays, so equal
// strings mean semantically equal state.
func canonical(h types.HostSchedules) string {
	b, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	return string(b)
}

func canonicalEntries(list []types.ScheduleEntry) string {
	b, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(b)
}

func cloneMap(m types.ScheduleMap) types.ScheduleMap {
	out := make(types.ScheduleMap, len(m))
	for app, envs := range m {
		out[app] = make(map[string]types.HostSchedules, len(envs))
		for env, data := range envs {
			out[app][env] = cloneHosts(data)
		}
	}
	return out
}

func cloneHosts(data types.HostSchedules) types.HostSchedules {
	out := make(types.HostSchedules, len(data))
	for host, entries := range data {
		list := make([]types.ScheduleEntry, len(entries))
		copy(list, entries)
		for i := range list {
			list[i].Dates = append([]string(nil), entries[i].Dates...)
			list[i].Cronjobs = append([]string(nil), entries[i].Cronjobs...)
		}
		out[host] = list
	}
	return out
}
