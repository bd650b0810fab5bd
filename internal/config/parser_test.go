package config

import (
	"testing"
)

func TestParseFile_YAML(t *testing.T) {
	result := ParseFile("testdata/valid-config.yaml")
	if !result.IsValid() {
		t.Fatalf("expected valid parse, got errors: %v", result.Errors)
	}
	if result.Format != FormatYAML {
		t.Errorf("Format = %q, want yaml", result.Format)
	}
	pardot, ok := result.Data["pardot"].(map[string]interface{})
	if !ok {
		t.Fatalf("pardot section missing: %v", result.Data)
	}
	if pardot["businessUnitId"] != "0Uv000000000001" {
		t.Errorf("businessUnitId = %v", pardot["businessUnitId"])
	}
}

func TestParseFile_JSON(t *testing.T) {
	result := ParseFile("testdata/valid-config.json")
	if !result.IsValid() {
		t.Fatalf("expected valid parse, got errors: %v", result.Errors)
	}
	if result.Format != FormatJSON {
		t.Errorf("Format = %q, want json", result.Format)
	}
}

func TestParseFile_SniffsUnknownExtension(t *testing.T) {
	result := ParseFile("testdata/app.conf")
	if !result.IsValid() {
		t.Fatalf("expected valid parse, got errors: %v", result.Errors)
	}
	if result.Format != FormatYAML {
		t.Errorf("Format = %q, want yaml", result.Format)
	}
}

func TestParseFile_SyntaxErrors(t *testing.T) {
	tests := []struct {
		path     string
		wantLine bool
	}{
		{"testdata/invalid-syntax.json", true},
		{"testdata/invalid-syntax.yaml", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := ParseFile(tt.path)
			if result.IsValid() {
				t.Fatal("expected parse errors")
			}
			err := result.Errors[0]
			if err.Type != ErrorTypeSyntax {
				t.Errorf("Type = %q, want syntax", err.Type)
			}
			if err.Path != tt.path {
				t.Errorf("Path = %q, want %q", err.Path, tt.path)
			}
			if tt.wantLine && err.Line == 0 {
				t.Errorf("expected a line number, got %+v", err)
			}
		})
	}
}

func TestParseFile_NonExistent(t *testing.T) {
	result := ParseFile("testdata/does-not-exist.yaml")
	if result.IsValid() {
		t.Fatal("expected an error for a missing file")
	}
	if result.Errors[0].Type != ErrorTypeIO {
		t.Errorf("Type = %q, want io", result.Errors[0].Type)
	}
}

func TestParseJSONString(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
		hasData bool
	}{
		{"object", `{"pardot": {"url": "https://pi.pardot.com"}}`, true, true},
		{"empty", "   ", false, false},
		{"null", "null", true, false},
		{"array", `[1, 2]`, false, false},
		{"broken", `{"a": }`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseJSONString(tt.content)
			if result.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v (errors %v)", result.IsValid(), tt.valid, result.Errors)
			}
			if (result.Data != nil) != tt.hasData {
				t.Errorf("Data = %v, want data %v", result.Data, tt.hasData)
			}
		})
	}
}

func TestParseYAMLString(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
		hasData bool
	}{
		{"mapping", "pardot:\n  url: https://pi.pardot.com\n", true, true},
		{"empty", "", false, false},
		{"comments only", "# nothing here\n", true, false},
		{"sequence", "- a\n- b\n", false, false},
		{"bad indent", "a:\n  b: 1\n c: 2\n", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseYAMLString(tt.content)
			if result.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v (errors %v)", result.IsValid(), tt.valid, result.Errors)
			}
			if (result.Data != nil) != tt.hasData {
				t.Errorf("Data = %v, want data %v", result.Data, tt.hasData)
			}
		})
	}
}

// yaml.v3 follows YAML 1.2: "yes" stays a string, 0755 is an octal int.
func TestParseYAMLString_YAML12Scalars(t *testing.T) {
	result := ParseYAMLString("flag: yes\nmode: 0o755\nid: \"0042\"\n")
	if !result.IsValid() {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Data["flag"] != "yes" {
		t.Errorf("flag = %#v, want string yes", result.Data["flag"])
	}
	if result.Data["mode"] != 493 {
		t.Errorf("mode = %#v, want 493", result.Data["mode"])
	}
	if result.Data["id"] != "0042" {
		t.Errorf("id = %#v, want string 0042", result.Data["id"])
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"config/app.yaml": FormatYAML,
		"config/app.YML":  FormatYAML,
		"config/app.json": FormatJSON,
		"config/app.ini":  "",
		"config/app":      "",
	}
	for in, want := range tests {
		if got := DetectFormat(in); got != want {
			t.Errorf("DetectFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsJSONAndIsYAML(t *testing.T) {
	if !IsJSON(`  {"a":1}`) || IsJSON("a: 1") {
		t.Error("IsJSON misdetected content")
	}
	if !IsYAML("a: 1") || IsYAML("") || IsYAML("a: [") {
		t.Error("IsYAML misdetected content")
	}
}

func TestOffsetToLineColumn(t *testing.T) {
	line, col := offsetToLineColumn("ab\ncd\nef", 7)
	if line != 3 || col != 2 {
		t.Errorf("offsetToLineColumn = (%d, %d), want (3, 2)", line, col)
	}
	line, col = offsetToLineColumn("abc", 0)
	if line != 1 || col != 1 {
		t.Errorf("offsetToLineColumn(0) = (%d, %d), want (1, 1)", line, col)
	}
}

func TestReport_AllErrors(t *testing.T) {
	r := &Report{
		ParseErrors:      []ParseError{{Message: "p"}},
		ValidationErrors: []ValidationError{{Path: "/pardot", Message: "v"}},
	}
	if len(r.AllErrors()) != 2 || r.IsValid() {
		t.Errorf("AllErrors() = %v", r.AllErrors())
	}
}

func TestParseError_Error(t *testing.T) {
	tests := []struct {
		err  ParseError
		want string
	}{
		{ParseError{Message: "m"}, "m"},
		{ParseError{Path: "app.yaml", Message: "m"}, "app.yaml: m"},
		{ParseError{Path: "app.yaml", Line: 3, Message: "m"}, "app.yaml: line 3: m"},
		{ParseError{Path: "app.json", Line: 3, Column: 7, Message: "m"}, "app.json: line 3, column 7: m"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestValidationError_Error(t *testing.T) {
	if got := (ValidationError{Path: "/pardot/url", Message: "bad"}).Error(); got != "/pardot/url: bad" {
		t.Errorf("Error() = %q", got)
	}
	if got := (ValidationError{Message: "bad"}).Error(); got != "bad" {
		t.Errorf("Error() = %q", got)
	}
}
