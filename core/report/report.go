package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"site-sync/core/reconcile"
	"site-sync/core/resolver"

	"github.com/goccy/go-yaml"
)

// Format is a report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
	DryRun     bool           `json:"dry_run" yaml:"dry_run"`
	Phases     []Phase        `json:"phases" yaml:"phases"`
	Matches    []Match        `json:"matches,omitempty" yaml:"matches,omitempty"`
	Unmatched  []Unmatched    `json:"unmatched,omitempty" yaml:"unmatched,omitempty"`
	Conflicts  []Conflict     `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Drift      []Drift        `json:"drift,omitempty" yaml:"drift,omitempty"`
	Duplicates []Duplicate    `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	Quota      map[string]int `json:"quota_remaining,omitempty" yaml:"quota_remaining,omitempty"`
}

// Phase summarizes one sync phase.
type Phase struct {
	Name     string                               `json:"name" yaml:"name"`
	Source   string                               `json:"source" yaml:"source"`
	Target   string                               `json:"target" yaml:"target"`
	Executed bool                                 `json:"executed" yaml:"executed"`
	Counts   map[string]reconcile.CategorySummary `json:"counts" yaml:"counts"`
	Failures []Failure                            `json:"failures,omitempty" yaml:"failures,omitempty"`
	Error    string                               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failure is a failed record.
type Failure struct {
	Op       string `json:"op" yaml:"op"`
	Category string `json:"category" yaml:"category"`
	Key      string `json:"key" yaml:"key"`
	State    string `json:"state" yaml:"state"`
	Error    string `json:"error" yaml:"error"`
}

// Match is a resolver pairing.
type Match struct {
	KeyA       string   `json:"key_a" yaml:"key_a"`
	NameA      string   `json:"name_a" yaml:"name_a"`
	KeyB       string   `json:"key_b" yaml:"key_b"`
	NameB      string   `json:"name_b" yaml:"name_b"`
	Similarity float64  `json:"similarity" yaml:"similarity"`
	DistanceKm *float64 `json:"distance_km,omitempty" yaml:"distance_km,omitempty"`
	Confidence string   `json:"confidence" yaml:"confidence"`
	Reasons    []string `json:"reasons" yaml:"reasons"`
	Merged     bool     `json:"merged" yaml:"merged"`
}

// Unmatched is a record left for manual action.
type Unmatched struct {
	System string `json:"system" yaml:"system"`
	Key    string `json:"key" yaml:"key"`
	Name   string `json:"name" yaml:"name"`
	Reason string `json:"reason" yaml:"reason"`
}

// Conflict is a human-reviewable disagreement.
type Conflict struct {
	Kind     string `json:"kind" yaml:"kind"`
	Category string `json:"category" yaml:"category"`
	Key      string `json:"key" yaml:"key"`
	Message  string `json:"message" yaml:"message"`
}

// Drift is a residual difference found by verification.
type Drift struct {
	Phase    string   `json:"phase" yaml:"phase"`
	Op       string   `json:"op" yaml:"op"`
	Key      string   `json:"key" yaml:"key"`
	Category string   `json:"category" yaml:"category"`
	Fields   []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Duplicate is a snapshot entry dropped for repeating a key.
type Duplicate struct {
	Source   string `json:"source" yaml:"source"`
	Category string `json:"category" yaml:"category"`
	Key      string `json:"key" yaml:"key"`
}

// NewPhase converts an apply result.
func NewPhase(name, source, target string, res *reconcile.ApplyResult) Phase {
	p := Phase{Name: name, Source: source, Target: target, Counts: map[string]reconcile.CategorySummary{}}
	if res == nil {
		return p
	}
	p.Executed = res.Executed
	for cat, c := range res.Summary.Categories {
		p.Counts[cat.String()] = *c
	}
	for _, r := range res.Failures() {
		p.Failures = append(p.Failures, Failure{
			Op:       string(r.Op),
			Category: r.Category.String(),
			Key:      r.Key,
			State:    string(r.State),
			Error:    r.Reason,
		})
	}
	return p
}

// AddDrift records every entry of a non-empty verification patch.
func (r *Report) AddDrift(phase string, patch reconcile.PatchSet) {
	for _, e := range patch.Add {
		r.Drift = append(r.Drift, Drift{Phase: phase, Op: string(reconcile.OpAdd), Key: e.Key(), Category: e.Category().String()})
	}
	for _, c := range patch.Update {
		r.Drift = append(r.Drift, Drift{Phase: phase, Op: string(reconcile.OpUpdate), Key: c.Key(), Category: c.New.Category().String(), Fields: c.Fields})
	}
	for _, e := range patch.Delete {
		r.Drift = append(r.Drift, Drift{Phase: phase, Op: string(reconcile.OpDelete), Key: e.Key(), Category: e.Category().String()})
	}
}

// AddMatch records a resolver pairing.
func (r *Report) AddMatch(m resolver.Match, merged bool) {
	r.Matches = append(r.Matches, Match{
		KeyA:       m.A.Key,
		NameA:      m.A.Name,
		KeyB:       m.B.Key,
		NameB:      m.B.Name,
		Similarity: m.Similarity,
		DistanceKm: m.DistanceKm,
		Confidence: m.Tier.String(),
		Reasons:    m.Reasons,
		Merged:     merged,
	})
}

// AddConflicts records conflicts.
func (r *Report) AddConflicts(conflicts []reconcile.Conflict) {
	for _, c := range conflicts {
		r.Conflicts = append(r.Conflicts, Conflict{Kind: c.Kind, Category: c.Category.String(), Key: c.Key, Message: c.Message})
	}
}

// Totals sums the counts of every phase.
func (r *Report) Totals() reconcile.CategorySummary {
	var t reconcile.CategorySummary
	for _, p := range r.Phases {
		for _, c := range p.Counts {
			t.Planned += c.Planned
			t.Created += c.Created
			t.Updated += c.Updated
			t.Deleted += c.Deleted
			t.Obsoleted += c.Obsoleted
			t.Skipped += c.Skipped
			t.Failed += c.Failed
		}
	}
	return t
}

// Failed reports whether any phase failed or any record failed.
func (r *Report) Failed() bool {
	for _, p := range r.Phases {
		if p.Error != "" || len(p.Failures) > 0 {
			return true
		}
	}
	return false
}

// Encode writes r in the given format.
func Encode(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatYAML:
		return yaml.NewEncoder(w).Encode(r)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
}

// Decode reads a report in the given format.
func Decode(rd io.Reader, format Format) (*Report, error) {
	var r Report
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
			return nil, fmt.Errorf("failed to decode yaml report: %w", err)
		}
	default:
		if err := json.NewDecoder(rd).Decode(&r); err != nil {
			return nil, fmt.Errorf("failed to decode json report: %w", err)
		}
	}
	return &r, nil
}

// PhaseNames returns the phase names in run order.
func (r *Report) PhaseNames() []string {
	names := make([]string, 0, len(r.Phases))
	for _, p := range r.Phases {
		names = append(names, p.Name)
	}
	return names
}

// SortedCategories returns the category names of p in alphabetical order.
func (p Phase) SortedCategories() []string {
	names := make([]string, 0, len(p.Counts))
	for n := range p.Counts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
