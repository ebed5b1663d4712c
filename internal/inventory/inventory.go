// Package inventory loads the machine inventory from CSV and serves the
// read-only projections the rest of the system navigates by: applications,
// environments per application, machines per scope.
package inventory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"powersched/internal/types"
)

// requiredColumns must all be present in the CSV header. Column order is
// free; unknown columns are ignored.
var requiredColumns = []string{"hostname", "machine_name", "application", "environment", "server_type"}

// envRank orders environments the way operators expect to read them,
// promotion order first, anything unknown alphabetically after.
var envRank = map[string]int{
	"dev":         0,
	"development": 0,
	"test":        1,
	"qa":          2,
	"uat":         3,
	"staging":     4,
	"preprod":     5,
	"prod":        6,
	"production":  6,
}

// Inventory is the immutable machine catalog for one session.
type Inventory struct {
	machines []types.Machine
	byScope  map[types.ScopeKey][]types.Machine
	byHost   map[string]types.Machine
}

// LoadCSV reads the inventory from a CSV file.
func LoadCSV(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationBadInventory,
			fmt.Sprintf("opening inventory file %s", path), err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV reads inventory rows from r. The first record is the header;
// required columns are matched by name, case-insensitively.
func ParseCSV(r io.Reader) (*Inventory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationBadInventory, "reading inventory header", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, types.NewAppError(types.ErrCodeValidationBadInventory,
				fmt.Sprintf("inventory header is missing column %q", col), nil)
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var machines []types.Machine
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeValidationBadInventory,
				fmt.Sprintf("inventory line %d", line), err)
		}
		m := types.Machine{
			Hostname:     field(row, "hostname"),
			MachineName:  field(row, "machine_name"),
			Application:  field(row, "application"),
			Environment:  field(row, "environment"),
			ServerType:   field(row, "server_type"),
			InstanceType: field(row, "instance_type"),
			Description:  field(row, "description"),
		}
		if m.Hostname == "" || m.Application == "" || m.Environment == "" {
			return nil, types.NewAppError(types.ErrCodeValidationBadInventory,
				fmt.Sprintf("inventory line %d: hostname, application, and environment are required", line), nil)
		}
		machines = append(machines, m)
	}

	return New(machines), nil
}

// New builds an Inventory from already parsed machines.
func New(machines []types.Machine) *Inventory {
	inv := &Inventory{
		machines: machines,
		byScope:  make(map[types.ScopeKey][]types.Machine),
		byHost:   make(map[string]types.Machine, len(machines)),
	}
	for _, m := range machines {
		key := types.ScopeKey{App: m.Application, Env: m.Environment}
		inv.byScope[key] = append(inv.byScope[key], m)
		inv.byHost[m.Hostname] = m
	}
	for _, list := range inv.byScope {
		sort.Slice(list, func(i, j int) bool { return list[i].Hostname < list[j].Hostname })
	}
	return inv
}

// Applications returns the distinct application names, sorted.
func (inv *Inventory) Applications() []string {
	seen := make(map[string]struct{})
	var apps []string
	for _, m := range inv.machines {
		if _, ok := seen[m.Application]; !ok {
			seen[m.Application] = struct{}{}
			apps = append(apps, m.Application)
		}
	}
	sort.Strings(apps)
	return apps
}

// Environments returns the application's environments in promotion order
// (dev before test before prod), unknown names alphabetically last.
func (inv *Inventory) Environments(app string) []string {
	seen := make(map[string]struct{})
	var envs []string
	for _, m := range inv.machines {
		if m.Application != app {
			continue
		}
		if _, ok := seen[m.Environment]; !ok {
			seen[m.Environment] = struct{}{}
			envs = append(envs, m.Environment)
		}
	}
	sort.Slice(envs, func(i, j int) bool {
		ri, iKnown := envRank[strings.ToLower(envs[i])]
		rj, jKnown := envRank[strings.ToLower(envs[j])]
		switch {
		case iKnown && jKnown && ri != rj:
			return ri < rj
		case iKnown != jKnown:
			return iKnown
		default:
			return envs[i] < envs[j]
		}
	})
	return envs
}

// Machines returns the machines of one scope, sorted by hostname.
func (inv *Inventory) Machines(app, env string) []types.Machine {
	list := inv.byScope[types.ScopeKey{App: app, Env: env}]
	out := make([]types.Machine, len(list))
	copy(out, list)
	return out
}

// Hostnames returns just the hostnames of one scope, sorted.
func (inv *Inventory) Hostnames(app, env string) []string {
	list := inv.byScope[types.ScopeKey{App: app, Env: env}]
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Hostname
	}
	return names
}

// Machine looks a machine up by hostname.
func (inv *Inventory) Machine(hostname string) (types.Machine, bool) {
	m, ok := inv.byHost[hostname]
	return m, ok
}

// All returns every machine in import order.
func (inv *Inventory) All() []types.Machine {
	out := make([]types.Machine, len(inv.machines))
	copy(out, inv.machines)
	return out
}

// Scopes returns every (application, environment) pair present, applications
// sorted and environments in promotion order within each.
func (inv *Inventory) Scopes() []types.ScopeKey {
	var keys []types.ScopeKey
	for _, app := range inv.Applications() {
		for _, env := range inv.Environments(app) {
			keys = append(keys, types.ScopeKey{App: app, Env: env})
		}
	}
	return keys
}

// Len returns the machine count.
func (inv *Inventory) Len() int {
	return len(inv.machines)
}
