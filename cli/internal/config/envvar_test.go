package config

import (
	"reflect"
	"testing"
)

func TestParseEnvVar(t *testing.T) {
	tests := []struct {
		input       string
		wantLiteral bool
		wantVar     string
		wantDefault string
		hasDefault  bool
		wantValue   string
	}{
		{input: "${DATABASE_URL}", wantVar: "DATABASE_URL"},
		{input: "${REDIS_ADDR:localhost:6379}", wantVar: "REDIS_ADDR", hasDefault: true, wantDefault: "localhost:6379"},
		{input: "${API_KEY:}", wantVar: "API_KEY", hasDefault: true},
		{input: "${_PRIVATE}", wantVar: "_PRIVATE"},
		{input: "${MY_VAR_123}", wantVar: "MY_VAR_123"},
		{input: "${DSN:postgres://u:p@h/db?sslmode=disable}", wantVar: "DSN", hasDefault: true, wantDefault: "postgres://u:p@h/db?sslmode=disable"},
		{input: "localhost:6379", wantLiteral: true, wantValue: "localhost:6379"},
		{input: "", wantLiteral: true},
		{input: "${lowercase}", wantLiteral: true, wantValue: "${lowercase}"},
		{input: "${INVALID-NAME}", wantLiteral: true, wantValue: "${INVALID-NAME}"},
		{input: "prefix ${VAR}", wantLiteral: true, wantValue: "prefix ${VAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := ParseEnvVar(tt.input)
			if err != nil {
				t.Fatalf("ParseEnvVar(%q) failed: %v", tt.input, err)
			}
			if spec.IsLiteral != tt.wantLiteral {
				t.Fatalf("IsLiteral = %v, want %v", spec.IsLiteral, tt.wantLiteral)
			}
			if tt.wantLiteral {
				if spec.LiteralValue != tt.wantValue {
					t.Errorf("LiteralValue = %q, want %q", spec.LiteralValue, tt.wantValue)
				}
				return
			}
			if spec.VarName != tt.wantVar {
				t.Errorf("VarName = %q, want %q", spec.VarName, tt.wantVar)
			}
			if spec.HasDefault != tt.hasDefault {
				t.Errorf("HasDefault = %v, want %v", spec.HasDefault, tt.hasDefault)
			}
			if spec.DefaultValue != tt.wantDefault {
				t.Errorf("DefaultValue = %q, want %q", spec.DefaultValue, tt.wantDefault)
			}
		})
	}
}

func TestParseConfigValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"int", 8080, "8080"},
		{"bool", true, "true"},
		{"float", 0.5, "0.5"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseConfigValue(tt.value)
			if err != nil {
				t.Fatalf("ParseConfigValue failed: %v", err)
			}
			if !spec.IsLiteral || spec.LiteralValue != tt.want {
				t.Errorf("got literal=%v value=%q, want %q", spec.IsLiteral, spec.LiteralValue, tt.want)
			}
		})
	}

	for _, v := range []interface{}{map[string]string{"k": "v"}, []string{"a"}} {
		if _, err := ParseConfigValue(v); err == nil {
			t.Errorf("ParseConfigValue(%T) should fail", v)
		}
	}
}

func TestResolveMap(t *testing.T) {
	t.Setenv("WIZFLOW_TEST_DSN", "postgres://wizard@db/wizflow")
	t.Setenv("WIZFLOW_TEST_KEY", "")

	got, err := ResolveMap(map[string]interface{}{
		"connection_string": "${WIZFLOW_TEST_DSN}",
		"addr":              "${WIZFLOW_TEST_UNSET_ADDR:localhost:6379}",
		"api_key":           "${WIZFLOW_TEST_KEY:fallback}",
		"max_open_conns":    20,
		"migrate":           false,
		"headers": map[string]interface{}{
			"X-Env": "${WIZFLOW_TEST_UNSET_ENV:test}",
		},
		"keys": []interface{}{"purposes", "${WIZFLOW_TEST_UNSET_KEY:points}"},
	})
	if err != nil {
		t.Fatalf("ResolveMap failed: %v", err)
	}

	want := map[string]interface{}{
		"connection_string": "postgres://wizard@db/wizflow",
		"addr":              "localhost:6379",
		"api_key":           "",
		"max_open_conns":    20,
		"migrate":           false,
		"headers":           map[string]interface{}{"X-Env": "test"},
		"keys":              []interface{}{"purposes", "points"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveMap = %#v\nwant %#v", got, want)
	}
}

func TestResolveMap_RequiredMissing(t *testing.T) {
	_, err := ResolveMap(map[string]interface{}{
		"nested": map[string]interface{}{"dsn": "${WIZFLOW_TEST_DEFINITELY_UNSET}"},
	})
	if err == nil {
		t.Fatal("expected error for unset required variable")
	}
}

func TestIsValidEnvVarName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"REDIS_ADDR", true},
		{"_PRIVATE", true},
		{"VAR123", true},
		{"", false},
		{"1VAR", false},
		{"lower", false},
		{"WITH-DASH", false},
	}

	for _, tt := range tests {
		if got := isValidEnvVarName(tt.name); got != tt.valid {
			t.Errorf("isValidEnvVarName(%q) = %v, want %v", tt.name, got, tt.valid)
		}
	}
}
