package runtime

// BranchResolver decides where a user goes after, or before, a step.
//
// Forward: if the summary has been reached, go straight back to it;
// otherwise take the first matching edge leaving the step, falling back
// to the next step on the happy path.
//
// Back: the mirror image. The forward route is replayed from the first
// step against the current answers and the step preceding current on that
// route is returned, so the same predicates decide both directions.
type BranchResolver struct{}

// NextStep returns the step after current, or "" at the end of the journey.
func (BranchResolver) NextStep(j *Journey, s *Session, current string) (string, error) {
	if !j.Knows(current) {
		return "", &StepDefinitionNotFoundError{Journey: j.ID, Step: current}
	}
	if j.Summary != "" && s.Flags.Bool(FlagCheckPageVisited) {
		return j.Summary, nil
	}
	return j.successor(s, current), nil
}

// BackStep returns the step before current, or "" when current is the
// first step of the journey.
func (BranchResolver) BackStep(j *Journey, s *Session, current string) (string, error) {
	if !j.Knows(current) {
		return "", &StepDefinitionNotFoundError{Journey: j.ID, Step: current}
	}
	if j.Summary != "" && s.Flags.Bool(FlagCheckPageVisited) {
		return j.Summary, nil
	}

	route := j.Route(s)
	for i, key := range route {
		if key == current {
			if i == 0 {
				return "", nil
			}
			return route[i-1], nil
		}
	}

	// current is not on the replayed route (the user jumped to it):
	// reverse the first matching edge into it, else the happy-path predecessor.
	for _, e := range j.Edges {
		if e.To == current && e.matches(s) {
			return e.From, nil
		}
	}
	if pos := j.position(current); pos > 0 {
		return j.Steps[pos-1], nil
	}
	return "", nil
}

// Route replays forward navigation from the first step, ignoring the
// check-page short-circuit, and returns the steps visited in order.
func (j *Journey) Route(s *Session) []string {
	limit := len(j.StepKeys()) + 1
	route := make([]string, 0, limit)
	seen := make(map[string]bool, limit)

	for key := j.First(); key != "" && !seen[key] && len(route) < limit; key = j.successor(s, key) {
		seen[key] = true
		route = append(route, key)
	}
	return route
}

func (j *Journey) successor(s *Session, current string) string {
	for _, e := range j.Edges {
		if e.From == current && e.matches(s) {
			return e.To
		}
	}
	if pos := j.position(current); pos >= 0 && pos+1 < len(j.Steps) {
		return j.Steps[pos+1]
	}
	return ""
}
