package runtime

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Flag names a branching marker stored on a session.
// Only the constants below are recognised by the engine; journeys may
// declare their own flags but should use named constants for them too.
type Flag string

const (
	// FlagCheckPageVisited is set once the user has reached the journey's
	// summary step. While set, forward and back navigation return to the summary.
	FlagCheckPageVisited Flag = "checkPageVisited"
	// FlagJourney selects a sub-path inside a journey (e.g. "no-returns-required").
	FlagJourney Flag = "journey"
	// FlagNotification carries a one-off banner for the summary page.
	FlagNotification Flag = "notification"
)

// Flags holds boolean and string markers used for branching.
type Flags map[Flag]any

func (f Flags) Bool(k Flag) bool {
	v, ok := f[k].(bool)
	return ok && v
}

func (f Flags) String(k Flag) string {
	v, _ := f[k].(string)
	return v
}

// Item is one repeated sub-record (e.g. a single return requirement).
type Item map[string]any

// Session is the accumulated, persisted state of one in-progress journey.
// Answers, Flags and Items must stay JSON-serializable: they cross the
// SessionStore boundary on every write.
type Session struct {
	ID          string         `json:"id"`
	JourneyType string         `json:"journeyType"`
	Answers     map[string]any `json:"answers"`
	Flags       Flags          `json:"flags"`
	Items       []Item         `json:"items"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// NewSession creates a session for journeyType with a fresh UUID.
// Seed answers are copied, never aliased.
func NewSession(journeyType string, seed map[string]any) *Session {
	now := time.Now().UTC()

	answers := make(map[string]any, len(seed))
	for k, v := range seed {
		answers[k] = deepCopy(v)
	}

	return &Session{
		ID:          uuid.New().String(),
		JourneyType: journeyType,
		Answers:     answers,
		Flags:       make(Flags),
		Items:       []Item{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy. Steps apply their changes to a clone so a
// failed apply never leaves a half-mutated session behind.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	c := *s
	c.Answers = deepCopy(s.Answers).(map[string]any)

	c.Flags = make(Flags, len(s.Flags))
	for k, v := range s.Flags {
		c.Flags[k] = deepCopy(v)
	}

	c.Items = make([]Item, len(s.Items))
	for i, item := range s.Items {
		c.Items[i] = Item(deepCopy(map[string]any(item)).(map[string]any))
	}

	return &c
}

// Item returns items[index] or an IndexOutOfRangeError.
func (s *Session) Item(index int) (Item, error) {
	if index < 0 || index >= len(s.Items) {
		return nil, &IndexOutOfRangeError{SessionID: s.ID, Index: index, Length: len(s.Items)}
	}
	if s.Items[index] == nil {
		return make(Item), nil
	}
	return s.Items[index], nil
}

// MutableItem is Item for callers that write to the result: a nil slot is
// replaced by a map stored in the session.
func (s *Session) MutableItem(index int) (Item, error) {
	item, err := s.Item(index)
	if err != nil {
		return nil, err
	}
	if s.Items[index] == nil {
		s.Items[index] = item
	}
	return item, nil
}

// AppendItem adds a new sub-record and returns its index.
func (s *Session) AppendItem(item Item) int {
	if item == nil {
		item = make(Item)
	}
	s.Items = append(s.Items, item)
	return len(s.Items) - 1
}

// RemoveItem deletes items[index], shifting later items down.
func (s *Session) RemoveItem(index int) error {
	if index < 0 || index >= len(s.Items) {
		return &IndexOutOfRangeError{SessionID: s.ID, Index: index, Length: len(s.Items)}
	}
	s.Items = append(s.Items[:index], s.Items[index+1:]...)
	return nil
}

// ensure fills nil maps left behind by older documents or zero values.
func (s *Session) ensure() {
	if s.Answers == nil {
		s.Answers = make(map[string]any)
	}
	if s.Flags == nil {
		s.Flags = make(Flags)
	}
	if s.Items == nil {
		s.Items = []Item{}
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case Item:
		m := make(Item, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	case []string:
		s := make([]string, len(t))
		copy(s, t)
		return s
	default:
		return t
	}
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.ID, s.JourneyType)
}
