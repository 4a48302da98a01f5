package runtime

import (
	"fmt"
	"sort"
)

// Predicate decides whether a conditional edge is taken.
type Predicate func(s *Session) bool

// Edge is a predicate-guarded deviation from the happy path. Edges leaving
// the same step are evaluated in declaration order; the first match wins.
// A nil When always matches, which is how steps that sit off the happy
// path declare their successor.
type Edge struct {
	From  string
	To    string
	When  Predicate
	Label string
}

func (e Edge) matches(s *Session) bool {
	return e.When == nil || e.When(s)
}

// Journey is one named wizard: its happy path, summary step and skips.
type Journey struct {
	ID           string
	Title        string
	Summary      string
	Steps        []string
	Edges        []Edge
	InitialFlags Flags
}

// First returns the first step of the happy path.
func (j *Journey) First() string {
	if len(j.Steps) == 0 {
		return ""
	}
	return j.Steps[0]
}

// Knows reports whether key is reachable in this journey, either on the
// happy path or as the endpoint of an edge.
func (j *Journey) Knows(key string) bool {
	if j.position(key) >= 0 {
		return true
	}
	for _, e := range j.Edges {
		if e.From == key || e.To == key {
			return true
		}
	}
	return false
}

func (j *Journey) position(key string) int {
	for i, s := range j.Steps {
		if s == key {
			return i
		}
	}
	return -1
}

// StepKeys returns every step the journey can visit, happy path first.
func (j *Journey) StepKeys() []string {
	seen := make(map[string]bool, len(j.Steps))
	keys := make([]string, 0, len(j.Steps))
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, s := range j.Steps {
		add(s)
	}
	for _, e := range j.Edges {
		add(e.From)
		add(e.To)
	}
	return keys
}

// Registry is the single source of truth for step definitions and the
// journeys that order them. Steps are shared by key across journeys.
type Registry struct {
	steps    map[string]*StepDefinition
	journeys map[string]*Journey
}

func NewRegistry() *Registry {
	return &Registry{
		steps:    make(map[string]*StepDefinition),
		journeys: make(map[string]*Journey),
	}
}

// RegisterStep adds a step definition. Keys must be unique.
func (r *Registry) RegisterStep(def *StepDefinition) error {
	if def == nil || def.Key == "" {
		return fmt.Errorf("step definition requires a key")
	}
	if _, exists := r.steps[def.Key]; exists {
		return fmt.Errorf("step %q already registered", def.Key)
	}
	r.steps[def.Key] = def
	return nil
}

// RegisterJourney adds a journey after checking that every step it
// references is registered and that its summary step is on the happy path.
func (r *Registry) RegisterJourney(j *Journey) error {
	if j == nil || j.ID == "" {
		return fmt.Errorf("journey requires an id")
	}
	if _, exists := r.journeys[j.ID]; exists {
		return fmt.Errorf("journey %q already registered", j.ID)
	}
	if len(j.Steps) == 0 {
		return fmt.Errorf("journey %q has no steps", j.ID)
	}

	for _, key := range j.StepKeys() {
		if _, ok := r.steps[key]; !ok {
			return fmt.Errorf("journey %q references unknown step %q", j.ID, key)
		}
	}

	if j.Summary != "" && j.position(j.Summary) < 0 {
		return fmt.Errorf("journey %q: summary step %q is not on the happy path", j.ID, j.Summary)
	}

	for i, e := range j.Edges {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("journey %q: edge #%d needs both from and to", j.ID, i)
		}
	}

	r.journeys[j.ID] = j
	return nil
}

// Journey returns the journey registered under id.
func (r *Registry) Journey(id string) (*Journey, error) {
	j, ok := r.journeys[id]
	if !ok {
		return nil, &JourneyNotFoundError{Journey: id}
	}
	return j, nil
}

// Step returns the definition for key as used by journey id.
func (r *Registry) Step(journeyID, key string) (*StepDefinition, error) {
	j, err := r.Journey(journeyID)
	if err != nil {
		return nil, err
	}
	if !j.Knows(key) {
		return nil, &StepDefinitionNotFoundError{Journey: journeyID, Step: key}
	}
	def, ok := r.steps[key]
	if !ok {
		return nil, &StepDefinitionNotFoundError{Journey: journeyID, Step: key}
	}
	return def, nil
}

// Journeys returns all registered journeys sorted by id.
func (r *Registry) Journeys() []*Journey {
	out := make([]*Journey, 0, len(r.journeys))
	for _, j := range r.journeys {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Steps returns all registered step keys sorted.
func (r *Registry) Steps() []string {
	out := make([]string, 0, len(r.steps))
	for k := range r.steps {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Merge copies every step and journey from other into r.
// Steps first, so journeys in other may reference steps already in r.
func (r *Registry) Merge(other *Registry) error {
	for _, key := range other.Steps() {
		if err := r.RegisterStep(other.steps[key]); err != nil {
			return err
		}
	}
	for _, j := range other.Journeys() {
		if err := r.RegisterJourney(j); err != nil {
			return err
		}
	}
	return nil
}
