package types

// ScheduleType distinguishes a bounded daily power window from a full-day shutdown.
type ScheduleType string

const (
	// TypeWindow keeps the machine up between StartTime and StopTime.
	TypeWindow ScheduleType = "window"
	// TypeShutdown keeps the machine down for the whole day.
	TypeShutdown ScheduleType = "shutdown"
)

// Recurrence determines which calendar days a schedule entry applies to.
type Recurrence string

const (
	RecurNone     Recurrence = "none"
	RecurDaily    Recurrence = "daily"
	RecurWeekdays Recurrence = "weekdays"
	RecurWeekends Recurrence = "weekends"
)

// Role defines the authorization level of a registry user.
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleAppOwner Role = "Application_owner"
	RoleReadOnly Role = "Read-Only"
)

// Permission is the resolved access level for one application.
type Permission string

const (
	PermNone      Permission = ""
	PermReadOnly  Permission = "ro"
	PermReadWrite Permission = "rw"
)

// ChangeKind classifies how a host's entry list differs from the snapshot.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeUpdated ChangeKind = "changed"
)

// CronAction labels a generated cron expression with the power action it triggers.
type CronAction string

const (
	CronStartup  CronAction = "startup"
	CronShutdown CronAction = "shutdown"
)
