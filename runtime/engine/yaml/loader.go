package yaml

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"

	"github.com/BDNK1/wizflow/runtime"
	goyaml "gopkg.in/yaml.v3"
)

// TableFile is one YAML journey table. Steps, journeys and static
// lookups from every file in a directory merge into one Registry.
type TableFile struct {
	Steps    []StepSpec                  `yaml:"steps"`
	Journeys []JourneySpec               `yaml:"journeys"`
	Lookups  map[string][]runtime.Option `yaml:"lookups"`

	name string
}

type StepSpec struct {
	Key        string            `yaml:"key"`
	Title      string            `yaml:"title"`
	Indexed    bool              `yaml:"indexed"`
	Lookups    []string          `yaml:"lookups"`
	Fields     []FieldSpec       `yaml:"fields"`
	Set        map[string]string `yaml:"set"`
	Clear      []string          `yaml:"clear"`
	Flags      map[string]string `yaml:"flags"`
	Checks     []CheckSpec       `yaml:"checks"`
	EnsureItem bool              `yaml:"ensure_item"`
}

type FieldSpec struct {
	Name     string            `yaml:"name"`
	Multi    bool              `yaml:"multi"`
	Rules    string            `yaml:"rules"`
	Message  string            `yaml:"message"`
	Messages map[string]string `yaml:"messages"`
	Lookup   string            `yaml:"lookup"`
	Options  []string          `yaml:"options"`
	Labels   map[string]string `yaml:"labels"`
	When     string            `yaml:"when"`
}

// CheckSpec is a cross-field rule: When must hold for the step to pass.
type CheckSpec struct {
	When    string `yaml:"when"`
	Field   string `yaml:"field"`
	Message string `yaml:"message"`
}

type JourneySpec struct {
	ID      string         `yaml:"id"`
	Title   string         `yaml:"title"`
	Summary string         `yaml:"summary"`
	Steps   []string       `yaml:"steps"`
	Edges   []EdgeSpec     `yaml:"edges"`
	Flags   map[string]any `yaml:"flags"`
}

// EdgeSpec leaves the happy path when When holds. An empty When always
// matches.
type EdgeSpec struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	When  string `yaml:"when"`
	Label string `yaml:"label"`
}

// Loader reads journey tables from YAML files.
type Loader struct {
	l         *slog.Logger
	evaluator *Evaluator
	lookups   runtime.StaticLookup
}

var _ runtime.JourneyLoader = (*Loader)(nil)

func NewLoader(l *slog.Logger) *Loader {
	return &Loader{
		l:         l,
		evaluator: NewEvaluator(),
		lookups:   make(runtime.StaticLookup),
	}
}

func (l *Loader) Extensions() []string {
	return []string{"*.yaml", "*.yml"}
}

// LoadDir loads every table file directly inside dir.
func (l *Loader) LoadDir(dir string) (*runtime.Registry, error) {
	return l.LoadFS(os.DirFS(dir), ".")
}

// LoadFS loads every table file directly inside dir of fsys.
func (l *Loader) LoadFS(fsys fs.FS, dir string) (*runtime.Registry, error) {
	var names []string
	for _, pattern := range l.Extensions() {
		matches, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		names = append(names, matches...)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return nil, fmt.Errorf("no journey tables found in %s", dir)
	}

	files := make([]*TableFile, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("error reading YAML file %s: %w", name, err)
		}
		tf, err := l.Parse(data, name)
		if err != nil {
			return nil, err
		}
		files = append(files, tf)
	}

	return l.Build(files...)
}

func (l *Loader) Parse(data []byte, name string) (*TableFile, error) {
	var tf TableFile
	if err := goyaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("error unmarshalling YAML %s: %w", name, err)
	}
	tf.name = name
	return &tf, nil
}

// Build compiles the tables into a Registry. All steps are registered
// before any journey so journeys may use steps from other files.
func (l *Loader) Build(files ...*TableFile) (*runtime.Registry, error) {
	registry := runtime.NewRegistry()
	sb := &stepBuilder{evaluator: l.evaluator, l: l.l}

	for _, tf := range files {
		for key, opts := range tf.Lookups {
			if _, exists := l.lookups[key]; exists {
				return nil, fmt.Errorf("%s: lookup %q already declared", tf.name, key)
			}
			l.lookups[key] = opts
		}
		for _, spec := range tf.Steps {
			def, err := sb.build(spec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tf.name, err)
			}
			if err := registry.RegisterStep(def); err != nil {
				return nil, fmt.Errorf("%s: %w", tf.name, err)
			}
		}
	}

	for _, tf := range files {
		for _, spec := range tf.Journeys {
			j, err := l.journey(spec)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tf.name, err)
			}
			if err := registry.RegisterJourney(j); err != nil {
				return nil, fmt.Errorf("%s: %w", tf.name, err)
			}
			l.l.Debug(fmt.Sprintf("Loaded journey: %s", j.ID), "file", tf.name, "steps", len(j.Steps), "edges", len(j.Edges))
		}
	}

	return registry, nil
}

// StaticLookup returns the option lists declared under `lookups:` in the
// tables loaded so far.
func (l *Loader) StaticLookup() runtime.StaticLookup {
	return l.lookups
}

func (l *Loader) journey(spec JourneySpec) (*runtime.Journey, error) {
	j := &runtime.Journey{
		ID:           spec.ID,
		Title:        spec.Title,
		Summary:      spec.Summary,
		Steps:        spec.Steps,
		InitialFlags: make(runtime.Flags, len(spec.Flags)),
	}
	for k, v := range spec.Flags {
		j.InitialFlags[runtime.Flag(k)] = v
	}

	for _, e := range spec.Edges {
		edge := runtime.Edge{From: e.From, To: e.To, Label: e.Label}
		if e.When != "" {
			ex, err := l.evaluator.Compile(e.When)
			if err != nil {
				return nil, fmt.Errorf("journey %s edge %s -> %s: %w", spec.ID, e.From, e.To, err)
			}
			edge.When = l.predicate(spec.ID, e, ex)
		}
		j.Edges = append(j.Edges, edge)
	}

	return j, nil
}

// predicate wraps ex as a runtime.Predicate. An expression that fails at
// runtime does not match.
func (l *Loader) predicate(journey string, e EdgeSpec, ex *Expression) runtime.Predicate {
	return func(s *runtime.Session) bool {
		ok, err := l.evaluator.Bool(ex, sessionEnv(s))
		if err != nil {
			l.l.Error("Edge condition failed",
				"journey", journey,
				"from", e.From,
				"to", e.To,
				"condition", e.When,
				"error", err)
			return false
		}
		return ok
	}
}
