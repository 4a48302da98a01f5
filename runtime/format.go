package runtime

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// JourneysPrefix is the route prefix every wizard URL lives under.
const JourneysPrefix = "/journeys"

// StepPath formats the URL of a step page. Indexed steps carry the item
// index as a trailing segment.
func StepPath(journey, sessionID, step string, index int) string {
	parts := []string{JourneysPrefix, url.PathEscape(journey), url.PathEscape(sessionID), url.PathEscape(step)}
	if index >= 0 {
		parts = append(parts, strconv.Itoa(index))
	}
	return strings.Join(parts, "/")
}

// ActionPath formats the URL of a session-level action such as "cancel".
func ActionPath(journey, sessionID, action string) string {
	return fmt.Sprintf("%s/%s/%s/%s", JourneysPrefix, url.PathEscape(journey), url.PathEscape(sessionID), action)
}

// ParseIndex reads an optional item index path segment; "" means NoIndex.
func ParseIndex(segment string) (int, error) {
	if segment == "" {
		return NoIndex, nil
	}
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 {
		return NoIndex, fmt.Errorf("invalid item index %q", segment)
	}
	return i, nil
}
