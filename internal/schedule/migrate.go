package schedule

import (
	"encoding/json"
	"fmt"

	"powersched/internal/types"
)

// decodeScheduleMap decodes a persisted or fetched schedule map, upgrading
// the legacy format where each host carried a single schedule object instead
// of a list. All shape sniffing lives here; the rest of the package only
// ever sees entry lists.
func decodeScheduleMap(raw []byte) (types.ScheduleMap, error) {
	var loose map[string]map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, err
	}

	out := make(types.ScheduleMap, len(loose))
	for app, envs := range loose {
		out[app] = make(map[string]types.HostSchedules, len(envs))
		for env, hosts := range envs {
			data := make(types.HostSchedules, len(hosts))
			for host, value := range hosts {
				entries, err := DecodeEntryList(value)
				if err != nil {
					return nil, fmt.Errorf("host %s in %s/%s: %w", host, app, env, err)
				}
				if len(entries) > 0 {
					data[host] = entries
				}
			}
			if len(data) > 0 {
				out[app][env] = data
			}
		}
		if len(out[app]) == 0 {
			delete(out, app)
		}
	}
	return out, nil
}

// DecodeEntryList decodes a host's schedule value, accepting both the
// current list format and the legacy single-object format. Legacy objects
// become one-element lists; a missing ID is left empty for the caller to
// assign.
func DecodeEntryList(raw json.RawMessage) ([]types.ScheduleEntry, error) {
	var list []types.ScheduleEntry
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single types.ScheduleEntry
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("schedule value is neither a list nor an object: %w", err)
	}
	if single.Type == "" && single.Recurring == "" {
		// An empty object means "no schedules" in the legacy format.
		return nil, nil
	}
	return []types.ScheduleEntry{single}, nil
}
