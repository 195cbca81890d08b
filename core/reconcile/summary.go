package reconcile

import (
	"site-sync/core/entity"
)

// CategorySummary aggregates record outcomes of one category.
type CategorySummary struct {
	Planned   int `json:"planned" yaml:"planned"`
	Created   int `json:"created" yaml:"created"`
	Updated   int `json:"updated" yaml:"updated"`
	Deleted   int `json:"deleted" yaml:"deleted"`
	Obsoleted int `json:"obsoleted" yaml:"obsoleted"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Summary aggregates record outcomes per category.
type Summary struct {
	Categories map[entity.Category]*CategorySummary `json:"categories" yaml:"categories"`
}

// NewSummary returns an empty summary.
func NewSummary() Summary {
	return Summary{Categories: map[entity.Category]*CategorySummary{}}
}

// Add counts one record.
func (s *Summary) Add(r Record) {
	if s.Categories == nil {
		s.Categories = map[entity.Category]*CategorySummary{}
	}
	c, ok := s.Categories[r.Category]
	if !ok {
		c = &CategorySummary{}
		s.Categories[r.Category] = c
	}

	switch r.State {
	case StatePending:
		c.Planned++
	case StateSkipped:
		c.Skipped++
	case StateFailedRetryable, StateFailedPermanent:
		c.Failed++
	case StateSucceeded:
		switch {
		case r.Op == OpAdd:
			c.Created++
		case r.Op == OpUpdate:
			c.Updated++
		case r.Op == OpDelete && r.Soft:
			c.Obsoleted++
		case r.Op == OpDelete:
			c.Deleted++
		}
	}
}

// Merge adds the counts of other into s.
func (s *Summary) Merge(other Summary) {
	if s.Categories == nil {
		s.Categories = map[entity.Category]*CategorySummary{}
	}
	for cat, o := range other.Categories {
		c, ok := s.Categories[cat]
		if !ok {
			c = &CategorySummary{}
			s.Categories[cat] = c
		}
		c.Planned += o.Planned
		c.Created += o.Created
		c.Updated += o.Updated
		c.Deleted += o.Deleted
		c.Obsoleted += o.Obsoleted
		c.Skipped += o.Skipped
		c.Failed += o.Failed
	}
}

// Total sums every category.
func (s Summary) Total() CategorySummary {
	var t CategorySummary
	for _, c := range s.Categories {
		t.Planned += c.Planned
		t.Created += c.Created
		t.Updated += c.Updated
		t.Deleted += c.Deleted
		t.Obsoleted += c.Obsoleted
		t.Skipped += c.Skipped
		t.Failed += c.Failed
	}
	return t
}
