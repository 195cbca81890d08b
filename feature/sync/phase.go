package sync

import (
	"fmt"
	"strings"
)

// Phase is one step of a run.
type Phase string

const (
	// PhaseMonitoring copies the monitoring layout into the store.
	PhaseMonitoring Phase = "monitoring_to_store"
	// PhaseMaintenance fills store gaps from the maintenance platform.
	PhaseMaintenance Phase = "maintenance_to_store"
	// PhasePush pushes the store to the maintenance platform.
	PhasePush Phase = "store_to_maintenance"
)

// AllPhases lists the phases in execution order.
var AllPhases = []Phase{PhaseMonitoring, PhaseMaintenance, PhasePush}

var phaseAliases = map[string]Phase{
	"1a":                     PhaseMonitoring,
	"vcom":                   PhaseMonitoring,
	string(PhaseMonitoring):  PhaseMonitoring,
	"1b":                     PhaseMaintenance,
	"yuman":                  PhaseMaintenance,
	string(PhaseMaintenance): PhaseMaintenance,
	"2":                      PhasePush,
	"push":                   PhasePush,
	string(PhasePush):        PhasePush,
}

// ParsePhases parses a comma separated phase list. "all" or "" selects every
// phase. The result is in execution order.
func ParsePhases(s string) ([]Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return append([]Phase(nil), AllPhases...), nil
	}
	want := map[Phase]bool{}
	for _, part := range strings.Split(s, ",") {
		p, ok := phaseAliases[strings.TrimSpace(part)]
		if !ok {
			return nil, fmt.Errorf("unknown phase %q", part)
		}
		want[p] = true
	}
	var out []Phase
	for _, p := range AllPhases {
		if want[p] {
			out = append(out, p)
		}
	}
	return out, nil
}
