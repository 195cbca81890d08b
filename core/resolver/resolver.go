package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
)

// MinSimilarity is the name similarity below which pairs are discarded.
const MinSimilarity = 0.60

// Tier is a coarse confidence bucket.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	tier, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// ParseTier parses HIGH, MEDIUM or LOW, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return TierHigh, nil
	case "MEDIUM":
		return TierMedium, nil
	case "LOW":
		return TierLow, nil
	}
	return TierLow, fmt.Errorf("unknown confidence tier %q", s)
}

// Candidate is one record of a pool.
type Candidate struct {
	Key     string   `json:"key" yaml:"key"`
	Name    string   `json:"name" yaml:"name"`
	Code    string   `json:"code,omitempty" yaml:"code,omitempty"`
	Lat     *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
	Ignored bool     `json:"ignored,omitempty" yaml:"ignored,omitempty"`
}

func (c Candidate) hasLocation() bool {
	return c.Lat != nil && c.Lon != nil
}

// Match pairs one candidate of pool A with one of pool B.
type Match struct {
	A          Candidate `json:"a" yaml:"a"`
	B          Candidate `json:"b" yaml:"b"`
	Similarity float64   `json:"similarity" yaml:"similarity"`
	DistanceKm *float64  `json:"distance_km,omitempty" yaml:"distance_km,omitempty"`
	Tier       Tier      `json:"confidence" yaml:"confidence"`
	Reasons    []string  `json:"reasons" yaml:"reasons"`
}

// Result is the outcome of one resolver run.
type Result struct {
	// Matches holds the accepted, injective assignment.
	Matches []Match `json:"matches" yaml:"matches"`
	// UnmatchedA lists pool A candidates without an accepted match.
	UnmatchedA []Candidate `json:"unmatched_a" yaml:"unmatched_a"`
	// UnmatchedB lists pool B candidates without an accepted match.
	UnmatchedB []Candidate `json:"unmatched_b" yaml:"unmatched_b"`
}

// AutoAccept returns the matches at or above minTier.
func (r Result) AutoAccept(minTier Tier) []Match {
	var out []Match
	for _, m := range r.Matches {
		if m.Tier >= minTier {
			out = append(out, m)
		}
	}
	return out
}

// Ambiguous returns the matches below minTier, which need a human decision.
func (r Result) Ambiguous(minTier Tier) []Match {
	var out []Match
	for _, m := range r.Matches {
		if m.Tier < minTier {
			out = append(out, m)
		}
	}
	return out
}

// Options tunes a Resolver.
type Options struct {
	// CleanNames applies CleanSiteName before normalization.
	CleanNames bool
	// Linked reports already-confirmed pairs; their candidates are excluded
	// from the pools before scoring.
	Linked func(a, b Candidate) bool
}

// Resolver scores and assigns candidate pairs.
type Resolver struct {
	opts   Options
	logger *zap.Logger
}

// New creates a Resolver. A nil logger disables logging.
func New(opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{opts: opts, logger: logger}
}

// Resolve pairs pool a with pool b. Ignored candidates never match and are
// not reported as unmatched.
func (r *Resolver) Resolve(a, b []Candidate) Result {
	a = active(a)
	b = active(b)
	a, b = r.dropLinked(a, b)

	var pairs []Match
	for _, ca := range a {
		for _, cb := range b {
			if m, ok := r.Evaluate(ca, cb); ok {
				pairs = append(pairs, m)
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].Tier != pairs[j].Tier {
			return pairs[i].Tier > pairs[j].Tier
		}
		return pairs[i].Similarity > pairs[j].Similarity
	})

	usedA := make(map[string]struct{}, len(a))
	usedB := make(map[string]struct{}, len(b))
	var res Result
	for _, m := range pairs {
		if _, ok := usedA[m.A.Key]; ok {
			continue
		}
		if _, ok := usedB[m.B.Key]; ok {
			continue
		}
		usedA[m.A.Key] = struct{}{}
		usedB[m.B.Key] = struct{}{}
		res.Matches = append(res.Matches, m)
	}

	for _, c := range a {
		if _, ok := usedA[c.Key]; !ok {
			res.UnmatchedA = append(res.UnmatchedA, c)
		}
	}
	for _, c := range b {
		if _, ok := usedB[c.Key]; !ok {
			res.UnmatchedB = append(res.UnmatchedB, c)
		}
	}

	r.logger.Debug("Resolved candidate pools",
		zap.Int("pool_a", len(a)),
		zap.Int("pool_b", len(b)),
		zap.Int("pairs", len(pairs)),
		zap.Int("matches", len(res.Matches)),
	)
	return res
}

// Evaluate scores one pair. It returns false when the names are too far apart.
func (r *Resolver) Evaluate(a, b Candidate) (Match, bool) {
	sim := r.Similarity(a.Name, b.Name)
	if sim < MinSimilarity {
		return Match{}, false
	}

	m := Match{A: a, B: b, Similarity: sim}
	switch {
	case sim >= 0.9:
		m.Reasons = append(m.Reasons, fmt.Sprintf("names very similar (%.0f%%)", sim*100))
	case sim >= 0.7:
		m.Reasons = append(m.Reasons, fmt.Sprintf("names similar (%.0f%%)", sim*100))
	default:
		m.Reasons = append(m.Reasons, fmt.Sprintf("names partially similar (%.0f%%)", sim*100))
	}

	confirmed := false
	if a.hasLocation() && b.hasLocation() {
		d := HaversineKm(*a.Lat, *a.Lon, *b.Lat, *b.Lon)
		m.DistanceKm = &d
		switch {
		case d < ConfirmedKm:
			confirmed = true
			m.Reasons = append(m.Reasons, "location confirmed (<500m)")
		case d < CloseKm:
			confirmed = true
			m.Reasons = append(m.Reasons, fmt.Sprintf("location close (%.1fkm)", d))
		case d > FarKm:
			m.Reasons = append(m.Reasons, fmt.Sprintf("locations far apart (%.0fkm)", d))
		}
	}

	codeMatch := codesEqual(a.Code, b.Code)
	if codeMatch {
		m.Reasons = append(m.Reasons, "identical code: "+strings.TrimSpace(a.Code))
	}

	m.Tier = tier(sim, confirmed, codeMatch)
	return m, true
}

// Similarity returns the sequence-matching ratio of the normalized names, 0
// when either is blank.
func (r *Resolver) Similarity(a, b string) float64 {
	if r.opts.CleanNames {
		a, b = CleanSiteName(a), CleanSiteName(b)
	}
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(na, ""), strings.Split(nb, "")).Ratio()
}

func (r *Resolver) dropLinked(a, b []Candidate) ([]Candidate, []Candidate) {
	if r.opts.Linked == nil {
		return a, b
	}
	linkedA := map[string]struct{}{}
	linkedB := map[string]struct{}{}
	for _, ca := range a {
		for _, cb := range b {
			if r.opts.Linked(ca, cb) {
				linkedA[ca.Key] = struct{}{}
				linkedB[cb.Key] = struct{}{}
			}
		}
	}
	return without(a, linkedA), without(b, linkedB)
}

func tier(sim float64, confirmed, codeMatch bool) Tier {
	switch {
	case codeMatch, sim >= 0.9, sim >= 0.7 && confirmed:
		return TierHigh
	case sim >= 0.7, sim >= 0.65 && confirmed:
		return TierMedium
	default:
		return TierLow
	}
}

func codesEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

func active(pool []Candidate) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if !c.Ignored {
			out = append(out, c)
		}
	}
	return out
}

func without(pool []Candidate, drop map[string]struct{}) []Candidate {
	if len(drop) == 0 {
		return pool
	}
	out := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if _, ok := drop[c.Key]; !ok {
			out = append(out, c)
		}
	}
	return out
}
