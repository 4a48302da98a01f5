package runtime

import (
	"errors"
	"slices"
	"testing"
)

func answerIs(field, value string) Predicate {
	return func(s *Session) bool { return s.Answers[field] == value }
}

func branchingJourney() *Journey {
	return &Journey{
		ID:      "notices",
		Summary: "check",
		Steps:   []string{"type", "period", "recipients", "check"},
		Edges: []Edge{
			{From: "type", To: "licence", When: answerIs("type", "adhoc"), Label: "ad-hoc notice"},
			{From: "type", To: "period", When: answerIs("type", "reminder")},
			{From: "type", To: "returns", When: answerIs("type", "adhoc")},
			{From: "licence", To: "recipients"},
			{From: "returns", To: "recipients"},
		},
	}
}

func TestNextStep(t *testing.T) {
	j := branchingJourney()
	var r BranchResolver

	tests := []struct {
		name    string
		answers map[string]any
		flags   Flags
		current string
		want    string
	}{
		{"first matching edge wins", map[string]any{"type": "adhoc"}, nil, "type", "licence"},
		{"second edge", map[string]any{"type": "reminder"}, nil, "type", "period"},
		{"no edge matches", map[string]any{"type": "invitation"}, nil, "type", "period"},
		{"unconditional edge", nil, nil, "licence", "recipients"},
		{"happy path", nil, nil, "period", "recipients"},
		{"end of journey", nil, nil, "check", ""},
		{"summary short-circuit", map[string]any{"type": "adhoc"}, Flags{FlagCheckPageVisited: true}, "type", "check"},
		{"flag must be true", nil, Flags{FlagCheckPageVisited: "yes"}, "period", "recipients"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(j.ID, tt.answers)
			for k, v := range tt.flags {
				s.Flags[k] = v
			}

			got, err := r.NextStep(j, s, tt.current)
			if err != nil {
				t.Fatalf("NextStep failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("NextStep(%s) = %q, want %q", tt.current, got, tt.want)
			}
		})
	}
}

func TestNextStep_EvaluatesInOrder(t *testing.T) {
	var calls []string
	track := func(name string, result bool) Predicate {
		return func(*Session) bool {
			calls = append(calls, name)
			return result
		}
	}

	j := &Journey{
		ID:    "ordered",
		Steps: []string{"a", "b", "c", "d"},
		Edges: []Edge{
			{From: "a", To: "b", When: track("first", false)},
			{From: "a", To: "c", When: track("second", true)},
			{From: "a", To: "d", When: track("third", true)},
		},
	}

	got, err := BranchResolver{}.NextStep(j, NewSession("ordered", nil), "a")
	if err != nil {
		t.Fatal(err)
	}
	if got != "c" {
		t.Errorf("NextStep = %q, want c", got)
	}
	if !slices.Equal(calls, []string{"first", "second"}) {
		t.Errorf("predicates evaluated = %v", calls)
	}
}

func TestBackStep(t *testing.T) {
	j := branchingJourney()
	var r BranchResolver

	tests := []struct {
		name    string
		answers map[string]any
		flags   Flags
		current string
		want    string
	}{
		{"first step", nil, nil, "type", ""},
		{"replayed branch", map[string]any{"type": "adhoc"}, nil, "recipients", "licence"},
		{"replayed happy path", map[string]any{"type": "reminder"}, nil, "recipients", "period"},
		{"branch entry", map[string]any{"type": "adhoc"}, nil, "licence", "type"},
		{"off route uses matching edge", map[string]any{"type": "adhoc"}, nil, "returns", "type"},
		{"off route falls back to happy path", map[string]any{"type": "adhoc"}, nil, "period", "type"},
		{"summary once visited", map[string]any{"type": "adhoc"}, Flags{FlagCheckPageVisited: true}, "licence", "check"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(j.ID, tt.answers)
			for k, v := range tt.flags {
				s.Flags[k] = v
			}

			got, err := r.BackStep(j, s, tt.current)
			if err != nil {
				t.Fatalf("BackStep failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("BackStep(%s) = %q, want %q", tt.current, got, tt.want)
			}
		})
	}
}

func TestResolver_UnknownStep(t *testing.T) {
	j := branchingJourney()
	s := NewSession(j.ID, nil)

	if _, err := (BranchResolver{}).NextStep(j, s, "nowhere"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("NextStep err = %v", err)
	}
	if _, err := (BranchResolver{}).BackStep(j, s, "nowhere"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("BackStep err = %v", err)
	}
}

func TestRoute_StopsOnCycle(t *testing.T) {
	j := &Journey{
		ID:    "loop",
		Steps: []string{"a", "b"},
		Edges: []Edge{{From: "b", To: "a"}},
	}

	route := j.Route(NewSession("loop", nil))
	if !slices.Equal(route, []string{"a", "b"}) {
		t.Errorf("Route = %v", route)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	for _, key := range []string{"type", "period", "recipients", "check", "licence", "returns"} {
		if err := reg.RegisterStep(&StepDefinition{Key: key}); err != nil {
			t.Fatal(err)
		}
	}
	if err := reg.RegisterStep(&StepDefinition{Key: "type"}); err == nil {
		t.Error("duplicate step should fail")
	}
	if err := reg.RegisterJourney(branchingJourney()); err != nil {
		t.Fatalf("RegisterJourney failed: %v", err)
	}

	invalid := []*Journey{
		{ID: "notices", Steps: []string{"type"}},
		{ID: "empty"},
		{ID: "unknown-step", Steps: []string{"type", "ghost"}},
		{ID: "summary-off-path", Summary: "licence", Steps: []string{"type"}, Edges: []Edge{{From: "type", To: "licence"}}},
		{ID: "half-edge", Steps: []string{"type"}, Edges: []Edge{{From: "type"}}},
	}
	for _, j := range invalid {
		if err := reg.RegisterJourney(j); err == nil {
			t.Errorf("journey %q should be rejected", j.ID)
		}
	}

	if _, err := reg.Step("notices", "returns"); err != nil {
		t.Errorf("edge-only step should resolve: %v", err)
	}
	if _, err := reg.Step("notices", "ghost"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("Step(ghost) = %v", err)
	}
	if _, err := reg.Journey("ghost"); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("Journey(ghost) = %v", err)
	}
	if got := reg.Steps(); !slices.IsSorted(got) || len(got) != 6 {
		t.Errorf("Steps = %v", got)
	}
}

func TestRegistry_Merge(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	_ = a.RegisterStep(&StepDefinition{Key: "one"})
	_ = b.RegisterStep(&StepDefinition{Key: "two"})
	if err := b.RegisterJourney(&Journey{ID: "b", Steps: []string{"two"}}); err != nil {
		t.Fatal(err)
	}

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(a.Journeys()) != 1 || len(a.Steps()) != 2 {
		t.Errorf("merged registry: %v %v", a.Journeys(), a.Steps())
	}
	if err := a.Merge(b); err == nil {
		t.Error("merging twice should report duplicates")
	}
}
