package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BDNK1/wizflow/runtime"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check [journeys-dir]",
	Short: "Validate journey tables and print their paths",
	Long: `Check loads every journey table in the directory (or the built-in
journeys when no directory is given), compiling all expressions and
verifying step references, then prints each journey's happy path and skips.

Example:
  wizflow check
  wizflow check ./journeys
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	dir := ""
	if len(args) > 0 {
		abs, err := projectDirFrom(args)
		if err != nil {
			return err
		}
		dir = abs
	}

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, static, err := loadJourneys(l, dir)
	if err != nil {
		return fmt.Errorf("journey tables are invalid: %w", err)
	}

	printRegistry(cmd.OutOrStdout(), registry, static)
	return nil
}

func printRegistry(w io.Writer, registry *runtime.Registry, static runtime.StaticLookup) {
	list := registry.Journeys()
	fmt.Fprintf(w, "%d journeys, %d steps, %d static lookups\n", len(list), len(registry.Steps()), len(static))

	for _, j := range list {
		fmt.Fprintf(w, "\n%s", j.ID)
		if j.Title != "" {
			fmt.Fprintf(w, " (%s)", j.Title)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  path:    %s\n", strings.Join(j.Steps, " -> "))
		if j.Summary != "" {
			fmt.Fprintf(w, "  summary: %s\n", j.Summary)
		}
		for _, e := range j.Edges {
			label := e.Label
			if label == "" && e.When == nil {
				label = "always"
			}
			fmt.Fprintf(w, "  skip:    %s -> %s", e.From, e.To)
			if label != "" {
				fmt.Fprintf(w, " [%s]", label)
			}
			fmt.Fprintln(w)
		}
	}
}
