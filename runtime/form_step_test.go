package runtime

import (
	"reflect"
	"testing"
)

type returnsCycleForm struct {
	ReturnsCycle string `json:"returnsCycle" validate:"required,oneof=summer winter-and-all-year"`
}

type pointsForm struct {
	Points []string `json:"points" validate:"required,min=1"`
}

type frequencyForm struct {
	Count int `json:"count" validate:"gte=1,lte=12"`
}

type periodForm struct {
	Start string `json:"start" validate:"required,day_month"`
	End   string `json:"end" validate:"required,day_month"`
}

func TestDecodeForm(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		form, errs := DecodeForm[returnsCycleForm](Payload{"returnsCycle": "summer"}, nil)
		if len(errs) > 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if form.ReturnsCycle != "summer" {
			t.Errorf("ReturnsCycle = %q", form.ReturnsCycle)
		}
	})

	t.Run("weakly typed", func(t *testing.T) {
		form, errs := DecodeForm[frequencyForm](Payload{"count": "4"}, nil)
		if len(errs) > 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if form.Count != 4 {
			t.Errorf("Count = %d", form.Count)
		}
	})

	tests := []struct {
		name    string
		decode  func() []FieldError
		field   string
		message string
	}{
		{
			name: "required uses humanized name",
			decode: func() []FieldError {
				_, errs := DecodeForm[returnsCycleForm](Payload{}, nil)
				return errs
			},
			field:   "returnsCycle",
			message: "Enter returns cycle",
		},
		{
			name: "other rules",
			decode: func() []FieldError {
				_, errs := DecodeForm[returnsCycleForm](Payload{"returnsCycle": "autumn"}, nil)
				return errs
			},
			field:   "returnsCycle",
			message: "Check returns cycle",
		},
		{
			name: "conversion failure",
			decode: func() []FieldError {
				_, errs := DecodeForm[frequencyForm](Payload{"count": "twice"}, nil)
				return errs
			},
			field:   "count",
			message: "Enter a valid count",
		},
		{
			name: "field message",
			decode: func() []FieldError {
				_, errs := DecodeForm[pointsForm](Payload{"points": []string{}}, map[string]string{
					"points": "Select at least one point",
				})
				return errs
			},
			field:   "points",
			message: "Select at least one point",
		},
		{
			name: "rule message wins over field message",
			decode: func() []FieldError {
				_, errs := DecodeForm[periodForm](Payload{"start": "30-2", "end": "31-10"}, map[string]string{
					"start":           "Enter the start date",
					"start.day_month": "Enter a real start date",
				})
				return errs
			},
			field:   "start",
			message: "Enter a real start date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.decode()
			if len(errs) != 1 {
				t.Fatalf("errors = %v, want exactly one", errs)
			}
			if errs[0].Field != tt.field || errs[0].Message != tt.message {
				t.Errorf("error = %+v, want %s: %q", errs[0], tt.field, tt.message)
			}
		})
	}
}

func TestNewFormStep(t *testing.T) {
	def := NewFormStep(FormSpec[periodForm]{
		Key:     "abstraction-period",
		Title:   "Enter the abstraction period",
		Indexed: true,
		Check: func(form *periodForm, _ *StepContext) []FieldError {
			if form.Start == form.End {
				return []FieldError{{Field: "end", Message: "The end date must differ from the start date"}}
			}
			return nil
		},
	})

	if !reflect.DeepEqual(def.Fields, []string{"start", "end"}) || len(def.MultiValued) != 0 {
		t.Errorf("fields = %v, multi = %v", def.Fields, def.MultiValued)
	}

	sc := &StepContext{Index: 0}
	if errs := def.validate(Payload{"start": "1-4", "end": "1-4"}, sc); len(errs) != 1 || errs[0].Field != "end" {
		t.Errorf("Check errors = %v", errs)
	}
	if errs := def.validate(Payload{"start": "1-4"}, sc); len(errs) != 1 || errs[0].Message != "Enter end" {
		t.Errorf("struct errors = %v", errs)
	}

	s := NewSession("returns", nil)
	s.AppendItem(Item{"start": "1-1", "other": "kept"})
	if err := def.apply(s, Payload{"start": "1-4", "end": "31-10"}, 0); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	want := Item{"start": "1-4", "end": "31-10", "other": "kept"}
	if !reflect.DeepEqual(s.Items[0], want) {
		t.Errorf("item = %v, want %v", s.Items[0], want)
	}
}

func TestNewFormStep_MultiValued(t *testing.T) {
	def := NewFormStep(FormSpec[pointsForm]{Key: "points", Indexed: true})

	if !reflect.DeepEqual(def.MultiValued, []string{"points"}) {
		t.Errorf("MultiValued = %v", def.MultiValued)
	}

	p := NormalizePayload(Payload{"points": "10021"}, def.MultiValued)
	if errs := def.validate(p, &StepContext{}); len(errs) > 0 {
		t.Errorf("single checkbox rejected: %v", errs)
	}
}

func TestHumanize(t *testing.T) {
	tests := map[string]string{
		"reason":                  "reason",
		"returnsCycle":            "returns cycle",
		"abstractionPeriod.start": "abstraction period start",
		"siteDescription":         "site description",
	}
	for in, want := range tests {
		if got := humanize(in); got != want {
			t.Errorf("humanize(%q) = %q, want %q", in, got, want)
		}
	}
}
