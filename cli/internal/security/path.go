package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary ensures that targetPath is within or equal to
// boundaryPath, so a project file cannot point the server at journey tables
// or config outside the project with "../" sequences.
//
// Example:
//
//	boundary := "/srv/wizards"
//	target := "/srv/wizards/journeys/returns.yaml"  // valid
//	target := "/srv/wizards/../../etc/passwd"       // rejected
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	_, err := ResolveWithin(boundaryPath, targetPath)
	return err
}

// ResolveWithin returns the absolute, cleaned form of targetPath. A relative
// targetPath is taken relative to boundaryPath. The result must not escape
// boundaryPath.
func ResolveWithin(boundaryPath, targetPath string) (string, error) {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}

	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(absBoundary, targetPath)
	}
	absTarget := filepath.Clean(targetPath)

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return "", fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}

	return absTarget, nil
}
