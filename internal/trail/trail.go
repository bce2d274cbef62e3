// Package trail classifies similarity scores into confidence tiers. Tier
// definitions ship embedded in the binary so the thresholds used for a
// deployment are always the ones it was built with.
package trail

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed trails.yaml
var trailsYaml []byte

// Tier names as they appear in API responses and search logs.
const (
	Eagle   = "eagle_trail"
	Lobo    = "lobo_trail"
	NoMatch = "no_match"
)

// Reasons attached to NoMatch results.
const (
	ReasonBelowThreshold = "below_threshold"
	ReasonEmptyCorpus    = "empty_corpus"
)

// Tier is one confidence band. Scores are cosine similarities of unit
// vectors; MinScore is the inclusive lower bound of the band.
type Tier struct {
	Name     string  `yaml:"name"`
	MinScore float64 `yaml:"min_score"`
	Icon     string  `yaml:"icon"`
	Message  string  `yaml:"message"`
}

// Result is the classification of one search outcome.
type Result struct {
	Trail   string
	Icon    string
	Message string
	Matched bool
	Reason  string
}

// Classifier assigns scores to tiers.
type Classifier struct {
	tiers []Tier
}

type trailsFile struct {
	Trails []Tier `yaml:"trails"`
}

// NewClassifier loads the embedded tier definitions.
func NewClassifier() (*Classifier, error) {
	var f trailsFile
	if err := yaml.Unmarshal(trailsYaml, &f); err != nil {
		return nil, fmt.Errorf("failed to parse embedded trail definitions: %w", err)
	}
	if len(f.Trails) == 0 {
		return nil, fmt.Errorf("embedded trail definitions contain no tiers")
	}
	tiers := make([]Tier, len(f.Trails))
	copy(tiers, f.Trails)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinScore > tiers[j].MinScore
	})
	return &Classifier{tiers: tiers}, nil
}

// Classify maps a similarity score to its tier. Boundaries are inclusive:
// exactly 0.90 is an eagle trail, exactly 0.80 a lobo trail.
func (c *Classifier) Classify(score float64) Result {
	for _, t := range c.tiers {
		if score >= t.MinScore {
			return Result{
				Trail:   t.Name,
				Icon:    t.Icon,
				Message: t.Message,
				Matched: true,
			}
		}
	}
	return Result{
		Trail:   NoMatch,
		Message: "No confident match found",
		Matched: false,
		Reason:  ReasonBelowThreshold,
	}
}

// EmptyCorpus is the classification when there is nothing to search against.
func (c *Classifier) EmptyCorpus() Result {
	return Result{
		Trail:   NoMatch,
		Message: "No identities enrolled yet",
		Matched: false,
		Reason:  ReasonEmptyCorpus,
	}
}

// Tiers returns the loaded tier definitions, highest threshold first.
func (c *Classifier) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}
