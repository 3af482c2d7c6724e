package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemplate(t *testing.T, dir, file, content string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestParser_Parse(t *testing.T) {
	tmpDir := t.TempDir()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	oldNow := Now
	Now = func() time.Time { return fixed }
	defer func() { Now = oldNow }()

	path := writeTemplate(t, tmpDir, "cfo.yaml", `name: cfo-v2-de
version: v2
locale: DE
role: financial-analyst
description: Finanzsicht
systemPrompt: Du bist der Finanzanalyst.
`)

	tmpl, err := NewParser().Parse(path)
	if err != nil {
		t.Fatalf("Parse() unexpected error = %v", err)
	}
	if tmpl.Role != "FINANCIAL_ANALYST" {
		t.Errorf("Role = %v, want FINANCIAL_ANALYST", tmpl.Role)
	}
	if tmpl.Locale != "de" {
		t.Errorf("Locale = %v, want de", tmpl.Locale)
	}
	if tmpl.UserTemplate != DefaultUserTemplate {
		t.Errorf("UserTemplate should default, got %q", tmpl.UserTemplate)
	}
	if tmpl.Path != path || !tmpl.LoadedAt.Equal(fixed) {
		t.Errorf("unexpected path/loadedAt: %s %v", tmpl.Path, tmpl.LoadedAt)
	}
	if tmpl.Builtin() {
		t.Error("file template should not be builtin")
	}
}

func TestParser_ParseErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := NewParser().Parse(filepath.Join(tmpDir, "missing.yaml")); !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("Parse() missing file error = %v, want ErrConfigNotFound", err)
	}

	bad := writeTemplate(t, tmpDir, "bad.yaml", "name: [unclosed\n")
	if _, err := NewParser().Parse(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Parse() bad yaml error = %v, want ErrInvalidConfig", err)
	}
}

func TestParser_Validate(t *testing.T) {
	valid := func() *Template {
		return &Template{Name: "risk-v1", Version: "v1", Role: "RISK_OFFICER", SystemPrompt: "You are the risk officer."}
	}

	tests := []struct {
		name    string
		mutate  func(*Template)
		wantErr error
	}{
		{name: "valid", mutate: func(*Template) {}},
		{name: "empty name", mutate: func(tp *Template) { tp.Name = "" }, wantErr: ErrInvalidName},
		{name: "uppercase name", mutate: func(tp *Template) { tp.Name = "Risk" }, wantErr: ErrInvalidName},
		{name: "leading hyphen", mutate: func(tp *Template) { tp.Name = "-risk" }, wantErr: ErrInvalidName},
		{name: "double hyphen", mutate: func(tp *Template) { tp.Name = "risk--v1" }, wantErr: ErrInvalidName},
		{name: "missing version", mutate: func(tp *Template) { tp.Version = "" }, wantErr: ErrInvalidConfig},
		{name: "bad version", mutate: func(tp *Template) { tp.Version = "1.0" }, wantErr: ErrInvalidConfig},
		{name: "three part version", mutate: func(tp *Template) { tp.Version = "v1.2.3" }},
		{name: "unknown role", mutate: func(tp *Template) { tp.Role = "janitor" }, wantErr: ErrInvalidConfig},
		{name: "bad locale", mutate: func(tp *Template) { tp.Locale = "english" }, wantErr: ErrInvalidConfig},
		{name: "regional locale", mutate: func(tp *Template) { tp.Locale = "en-GB" }},
		{name: "missing system prompt", mutate: func(tp *Template) { tp.SystemPrompt = "  " }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := valid()
			tt.mutate(tmpl)
			err := NewParser().Validate(tmpl)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRender(t *testing.T) {
	got := Render("Q: {{question}} C: {{context}} R: {{role_title}} O: {{opinions}} X: {{unknown}}", Vars{
		Question:  "expand?",
		Context:   "{}",
		RoleTitle: "Strategist",
		Extra:     map[string]string{"opinions": "none"},
	})
	want := "Q: expand? C: {} R: Strategist O: none X: {{unknown}}"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}
