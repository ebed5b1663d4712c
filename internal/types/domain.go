package types

import (
	"fmt"
	"time"
)

// Machine is one row of the machine inventory. Machines are immutable once
// loaded; the inventory import is the only producer.
type Machine struct {
	Hostname     string `json:"hostname" csv:"hostname"`
	MachineName  string `json:"machine_name" csv:"machine_name"`
	Application  string `json:"application" csv:"application"`
	Environment  string `json:"environment" csv:"environment"`
	ServerType   string `json:"server_type" csv:"server_type"`
	InstanceType string `json:"instance_type,omitempty" csv:"instance_type"`
	Description  string `json:"description,omitempty" csv:"description"`
}

// ScheduleEntry is the core mutable unit: one shutdown/startup rule for one
// host. The JSON field names match the remote store wire format.
type ScheduleEntry struct {
	ID        string       `json:"id"`
	Type      ScheduleType `json:"type"`
	StartTime string       `json:"startTime,omitempty"` // "HH:MM", required for TypeWindow
	StopTime  string       `json:"stopTime,omitempty"`  // "HH:MM", required for TypeWindow
	Recurring Recurrence   `json:"recurring"`
	// Dates holds explicit ISO calendar dates ("2006-01-02"), populated only
	// when Recurring is RecurNone. Insertion order is preserved.
	Dates []string `json:"dates,omitempty"`
	// EnvGroupID ties together entries created by a single whole-environment
	// action across multiple hosts.
	EnvGroupID string `json:"envGroupId,omitempty"`
	// Cronjobs carries the cron translation of this entry. It is populated
	// only on the outbound save payload, never stored locally.
	Cronjobs []string `json:"cronjobs,omitempty"`
}

// HostSchedules maps hostname to that host's ordered entry list. A host with
// no entries must be absent from the map, never present with an empty list.
type HostSchedules map[string][]ScheduleEntry

// ScheduleMap is the authoritative nested schedule state:
// application -> environment -> HostSchedules.
type ScheduleMap map[string]map[string]HostSchedules

// ScopeKey identifies an (application, environment) pair, the unit of
// dirty-tracking and remote persistence.
type ScopeKey struct {
	App string
	Env string
}

// RemoteKey renders the scope in the remote store's key format. Application
// or environment names containing '_' are ambiguous on the wire; the format
// is kept for compatibility with the deployed remote store.
func (k ScopeKey) RemoteKey() string {
	return fmt.Sprintf("%s_%s", k.App, k.Env)
}

func (k ScopeKey) String() string {
	return k.App + "/" + k.Env
}

// ScopeChange describes one dirty scope: the full current per-host data to
// push, plus per-host classification against the snapshot baseline.
type ScopeChange struct {
	Scope   ScopeKey
	Data    HostSchedules
	Hosts   map[string]ChangeKind
	Added   int
	Removed int
	Changed int
}

// SaveResult is the per-scope outcome of a batched remote save.
type SaveResult struct {
	Key string
	Err error
}

// EnvGroup is the derived view of a whole-environment schedule: every entry
// across hosts in one scope sharing an EnvGroupID. It is reconstructed by
// scanning, never stored.
type EnvGroup struct {
	GroupID string
	// Entry carries the shared schedule parameters. All member entries are
	// identical except for ID and host membership.
	Entry ScheduleEntry
	// Hostnames are the hosts currently carrying the group entry, sorted.
	Hostnames []string
	// TotalMachines is the machine count of the scope at read time, so the
	// caller can show how many hosts were excluded.
	TotalMachines int
}

// CronJob is one generated cron expression together with the action it fires.
type CronJob struct {
	Action CronAction `json:"action"`
	Expr   string     `json:"expr"`
}

// ExportRecord is a flattened schedule entry joined with machine metadata,
// produced for the JSON export.
type ExportRecord struct {
	Application  string   `json:"application"`
	Environment  string   `json:"environment"`
	MachineName  string   `json:"machine_name"`
	Hostname     string   `json:"hostname"`
	ServerType   string   `json:"server_type"`
	ScheduleType string   `json:"schedule_type"`
	StartTime    string   `json:"start_time"`
	StopTime     string   `json:"stop_time"`
	Recurring    string   `json:"recurring"`
	Dates        []string `json:"dates"`
}

// Note is a per-host free-text annotation. Notes are persisted locally only
// and never take part in the diff/save cycle.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserRecord is one entry of the external user registry.
type UserRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	GitHubUser   string    `json:"github_user,omitempty"`
	Role         Role      `json:"role"`
	Applications AppGrants `json:"applications"`
}

// Identity is the resolved result of the external OAuth exchange.
type Identity struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// FetchRequest is the body of POST /schedules/fetch.
type FetchRequest struct {
	Keys []string `json:"keys" validate:"required,min=1,dive,required"`
}

// FetchResponse maps each requested key to its per-host schedule data.
// Unknown keys are present with an empty object.
type FetchResponse struct {
	Items map[string]HostSchedules `json:"items"`
}

// SaveRequest is the body of POST /schedules/save. Save is a full replace of
// the scope's state, which is what makes a retried save idempotent.
type SaveRequest struct {
	Key       string        `json:"key" validate:"required"`
	Data      HostSchedules `json:"data"`
	User      string        `json:"user" validate:"required"`
	Timestamp string        `json:"timestamp" validate:"required"`
}

// ParseTimestamp validates the request timestamp as RFC 3339.
func (r SaveRequest) ParseTimestamp() (time.Time, error) {
	return time.Parse(time.RFC3339, r.Timestamp)
}
