package yaml

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/BDNK1/wizflow/runtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const stepsTable = `
lookups:
  purposes:
    - { value: spray, label: Spray irrigation }
    - { value: trickle }

steps:
  - key: reason
    title: Select the reason
    fields:
      - name: reason
        rules: required
        options: [new-licence, no-returns]
        message: Select the reason
    ensure_item: true

  - key: purpose
    indexed: true
    lookups: [purposes]
    fields:
      - name: purposes
        multi: true
        rules: required
        lookup: purposes
        message: Select any purpose

  - key: received
    fields:
      - name: receivedDateOptions
        rules: required
        options: [today, customDate]
      - name: receivedDate
        when: 'payload.receivedDateOptions == "customDate"'
        rules: required,datetime=2006-01-02
        messages:
          required: Enter a received date
          datetime: Enter a real received date
    set:
      receivedDate: 'payload.receivedDateOptions == "today" ? "2024-05-01" : payload.receivedDate'
    flags:
      journey: 'payload.receivedDateOptions == "today" ? "quick" : nil'

  - key: note
    fields:
      - name: note
        rules: max=10
    clear: [legacyNote]
    checks:
      - when: 'payload.note != "forbidden"'
        field: note
        message: That note is not allowed

  - key: start-date
    fields:
      - name: startDateOptions
        rules: required
        options: [licenceStartDate, anotherStartDate]
      - name: startDate
        when: 'payload.startDateOptions == "anotherStartDate"'
        rules: required,datetime=2006-01-02
      - name: site
        options: [borehole-a, borehole-b]

  - key: check
`

const journeysTable = `
journeys:
  - id: returns
    summary: check
    steps: [reason, purpose, check]
    edges:
      - from: reason
        to: note
        when: 'answers.reason == "no-returns"'
      - from: note
        to: check
    flags:
      journey: returns-required
  - id: receipts
    steps: [received, start-date, check]
`

func loadTables(t *testing.T) (*Loader, *runtime.Registry) {
	t.Helper()
	fsys := fstest.MapFS{
		"tables/a-steps.yaml":   {Data: []byte(stepsTable)},
		"tables/b-journeys.yml": {Data: []byte(journeysTable)},
		"tables/ignored.txt":    {Data: []byte("not a table")},
		"tables/nested/c.yaml":  {Data: []byte("steps: [{key: nested}]")},
	}

	l := NewLoader(testLogger())
	registry, err := l.LoadFS(fsys, "tables")
	if err != nil {
		t.Fatalf("LoadFS failed: %v", err)
	}
	return l, registry
}

func TestLoadFS(t *testing.T) {
	l, registry := loadTables(t)

	if got := registry.Steps(); !reflect.DeepEqual(got, []string{"check", "note", "purpose", "reason", "received", "start-date"}) {
		t.Errorf("steps = %v", got)
	}
	if len(registry.Journeys()) != 2 {
		t.Fatalf("journeys = %v", registry.Journeys())
	}

	j, err := registry.Journey("returns")
	if err != nil {
		t.Fatal(err)
	}
	if j.Summary != "check" || len(j.Edges) != 2 || j.InitialFlags[runtime.FlagJourney] != "returns-required" {
		t.Errorf("journey = %+v", j)
	}

	if opts := l.StaticLookup()["purposes"]; len(opts) != 2 || opts[0].Label != "Spray irrigation" {
		t.Errorf("static lookup = %v", opts)
	}

	def, err := registry.Step("returns", "purpose")
	if err != nil {
		t.Fatal(err)
	}
	if !def.Indexed || !reflect.DeepEqual(def.MultiValued, []string{"purposes"}) {
		t.Errorf("purpose definition = %+v", def)
	}
}

func TestLoad_Edges(t *testing.T) {
	_, registry := loadTables(t)
	j, _ := registry.Journey("returns")
	var r runtime.BranchResolver

	tests := []struct {
		reason string
		want   string
	}{
		{"new-licence", "purpose"},
		{"no-returns", "note"},
	}
	for _, tt := range tests {
		s := runtime.NewSession("returns", map[string]any{"reason": tt.reason})
		got, err := r.NextStep(j, s, "reason")
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("reason %s: next = %q, want %q", tt.reason, got, tt.want)
		}
	}

	s := runtime.NewSession("returns", map[string]any{"reason": "no-returns"})
	if got, _ := r.NextStep(j, s, "note"); got != "check" {
		t.Errorf("note: next = %q", got)
	}
}

func TestStep_Validate(t *testing.T) {
	_, registry := loadTables(t)
	refs := runtime.References{"purposes": {{Value: "spray"}, {Value: "trickle"}}}

	tests := []struct {
		name    string
		journey string
		step    string
		payload runtime.Payload
		want    []runtime.FieldError
	}{
		{"valid option", "returns", "reason", runtime.Payload{"reason": "new-licence"}, nil},
		{"required", "returns", "reason", runtime.Payload{"reason": " "}, []runtime.FieldError{{Field: "reason", Message: "Select the reason"}}},
		{"not an option", "returns", "reason", runtime.Payload{"reason": "other"}, []runtime.FieldError{{Field: "reason", Message: "Select the reason"}}},
		{"lookup value", "returns", "purpose", runtime.Payload{"purposes": []string{"spray"}}, nil},
		{"not a lookup value", "returns", "purpose", runtime.Payload{"purposes": []string{"spray", "fishing"}}, []runtime.FieldError{{Field: "purposes", Message: "Select any purpose"}}},
		{"empty multi", "returns", "purpose", runtime.Payload{"purposes": []string{}}, []runtime.FieldError{{Field: "purposes", Message: "Select any purpose"}}},
		{"conditional field skipped", "receipts", "received", runtime.Payload{"receivedDateOptions": "today"}, nil},
		{"conditional field required", "receipts", "received", runtime.Payload{"receivedDateOptions": "customDate"}, []runtime.FieldError{{Field: "receivedDate", Message: "Enter a received date"}}},
		{"rule message", "receipts", "received", runtime.Payload{"receivedDateOptions": "customDate", "receivedDate": "2024-02-30"}, []runtime.FieldError{{Field: "receivedDate", Message: "Enter a real received date"}}},
		{"default message", "returns", "note", runtime.Payload{"note": "far too long for this"}, []runtime.FieldError{{Field: "note", Message: "Enter a valid note"}}},
		{"check", "returns", "note", runtime.Payload{"note": "forbidden"}, []runtime.FieldError{{Field: "note", Message: "That note is not allowed"}}},
		{"list on an optional scalar", "receipts", "start-date", runtime.Payload{"startDateOptions": "licenceStartDate", "site": []string{"not-a-site", "also-bad"}}, []runtime.FieldError{{Field: "site", Message: "Enter a valid site"}}},
		{"list on a required scalar", "returns", "reason", runtime.Payload{"reason": []any{"new-licence", "no-returns"}}, []runtime.FieldError{{Field: "reason", Message: "Select the reason"}}},
		{"optional scalar option", "receipts", "start-date", runtime.Payload{"startDateOptions": "licenceStartDate", "site": "borehole-b"}, nil},
		{"hidden field ignored", "receipts", "start-date", runtime.Payload{"startDateOptions": "licenceStartDate", "startDate": "garbage"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := registry.Step(tt.journey, tt.step)
			if err != nil {
				t.Fatal(err)
			}
			s := runtime.NewSession(tt.journey, nil)
			s.AppendItem(nil)

			got := def.Validate(tt.payload, &runtime.StepContext{Session: s, Index: 0, References: refs})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStep_Apply(t *testing.T) {
	_, registry := loadTables(t)

	t.Run("ensure item is idempotent", func(t *testing.T) {
		def, _ := registry.Step("returns", "reason")
		s := runtime.NewSession("returns", map[string]any{"licenceId": "L-1"})

		for i := 0; i < 2; i++ {
			if err := def.Apply(s, runtime.Payload{"reason": "new-licence"}, runtime.NoIndex); err != nil {
				t.Fatal(err)
			}
		}
		if len(s.Items) != 1 || s.Answers["reason"] != "new-licence" || s.Answers["licenceId"] != "L-1" {
			t.Errorf("session = %+v", s)
		}
	})

	t.Run("indexed fields land in the item", func(t *testing.T) {
		def, _ := registry.Step("returns", "purpose")
		s := runtime.NewSession("returns", nil)
		s.AppendItem(nil)
		s.AppendItem(runtime.Item{"purposes": []string{"trickle"}})

		if err := def.Apply(s, runtime.Payload{"purposes": []string{"spray"}}, 0); err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(s.Items[0]["purposes"], []string{"spray"}) || !reflect.DeepEqual(s.Items[1]["purposes"], []string{"trickle"}) {
			t.Errorf("items = %v", s.Items)
		}
		if _, ok := s.Answers["purposes"]; ok {
			t.Error("indexed field leaked into answers")
		}
	})

	t.Run("set and flags", func(t *testing.T) {
		def, _ := registry.Step("receipts", "received")
		s := runtime.NewSession("receipts", nil)

		if err := def.Apply(s, runtime.Payload{"receivedDateOptions": "today"}, runtime.NoIndex); err != nil {
			t.Fatal(err)
		}
		if s.Answers["receivedDate"] != "2024-05-01" || s.Flags.String(runtime.FlagJourney) != "quick" {
			t.Errorf("answers = %v, flags = %v", s.Answers, s.Flags)
		}

		if err := def.Apply(s, runtime.Payload{"receivedDateOptions": "customDate", "receivedDate": "2024-04-02"}, runtime.NoIndex); err != nil {
			t.Fatal(err)
		}
		if s.Answers["receivedDate"] != "2024-04-02" {
			t.Errorf("receivedDate = %v", s.Answers["receivedDate"])
		}
		if _, ok := s.Flags[runtime.FlagJourney]; ok {
			t.Error("nil flag expression should remove the flag")
		}
	})

	t.Run("hidden fields are dropped", func(t *testing.T) {
		def, _ := registry.Step("receipts", "start-date")
		s := runtime.NewSession("receipts", map[string]any{"startDate": "2024-01-01"})

		if err := def.Apply(s, runtime.Payload{"startDateOptions": "licenceStartDate", "startDate": "garbage"}, runtime.NoIndex); err != nil {
			t.Fatal(err)
		}
		if _, ok := s.Answers["startDate"]; ok {
			t.Errorf("hidden startDate stored: %v", s.Answers)
		}

		if err := def.Apply(s, runtime.Payload{"startDateOptions": "anotherStartDate", "startDate": "2024-04-01"}, runtime.NoIndex); err != nil {
			t.Fatal(err)
		}
		if s.Answers["startDate"] != "2024-04-01" {
			t.Errorf("startDate = %v", s.Answers["startDate"])
		}
	})

	t.Run("clear", func(t *testing.T) {
		def, _ := registry.Step("returns", "note")
		s := runtime.NewSession("returns", map[string]any{"legacyNote": "old", "note": "previous"})

		if err := def.Apply(s, runtime.Payload{}, runtime.NoIndex); err != nil {
			t.Fatal(err)
		}
		if len(s.Answers) != 0 {
			t.Errorf("answers = %v", s.Answers)
		}
	})
}

func TestStep_Present(t *testing.T) {
	_, registry := loadTables(t)
	def, _ := registry.Step("returns", "reason")
	s := runtime.NewSession("returns", map[string]any{"reason": "new-licence"})

	out := def.Present(&runtime.StepContext{Session: s, Index: runtime.NoIndex}, nil, nil).(map[string]any)
	if out["title"] != "Select the reason" {
		t.Errorf("title = %v", out["title"])
	}
	values := out["values"].(map[string]any)
	if values["reason"] != "new-licence" {
		t.Errorf("values = %v", values)
	}

	fields := reflect.ValueOf(out["fields"])
	if fields.Len() != 1 {
		t.Fatalf("fields = %v", out["fields"])
	}
	options := fields.Index(0).FieldByName("Options")
	if options.Len() != 2 {
		t.Errorf("options = %v", options)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"no tables", map[string]string{"tables/readme.md": "#"}, "no journey tables"},
		{"bad yaml", map[string]string{"tables/a.yaml": "steps: ["}, "error unmarshalling"},
		{"missing key", map[string]string{"tables/a.yaml": "steps: [{title: x}]"}, "requires a key"},
		{"duplicate field", map[string]string{"tables/a.yaml": "steps: [{key: a, fields: [{name: x}, {name: x}]}]"}, "duplicate field"},
		{"bad expression", map[string]string{"tables/a.yaml": "steps: [{key: a, checks: [{when: 'session.x'}]}]"}, "step a check"},
		{"undeclared lookup", map[string]string{"tables/a.yaml": "steps: [{key: a, fields: [{name: x, lookup: sites}]}]"}, "not declared"},
		{"unknown step", map[string]string{"tables/a.yaml": "journeys: [{id: j, steps: [ghost]}]"}, "unknown step"},
		{"bad edge", map[string]string{"tables/a.yaml": "steps: [{key: a}]\njourneys: [{id: j, steps: [a], edges: [{from: a, to: a, when: '=='}]}]"}, "edge a -> a"},
		{"duplicate lookup", map[string]string{
			"tables/a.yaml": "lookups: {sites: [{value: x}]}",
			"tables/b.yaml": "lookups: {sites: [{value: y}]}",
		}, "already declared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{}
			for name, data := range tt.files {
				fsys[name] = &fstest.MapFile{Data: []byte(data)}
			}

			_, err := NewLoader(testLogger()).LoadFS(fsys, "tables")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "journey.yaml"), []byte(stepsTable+journeysTable), 0o644); err != nil {
		t.Fatal(err)
	}

	registry, err := NewLoader(testLogger()).LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(registry.Journeys()) != 2 {
		t.Errorf("journeys = %d", len(registry.Journeys()))
	}
}
