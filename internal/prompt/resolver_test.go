package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeTemplates(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	return path
}

const sampleTemplates = `{
	"ko": {
		"DASHBOARD_INTERNAL": {
			"briefing": "localized briefing {{context_data}}"
		},
		"EXTERNAL_AI_HUB": {
			"terminal": "terminal instruction"
		}
	},
	"DASHBOARD_INTERNAL": {
		"briefing": "legacy briefing",
		"proactive": "legacy proactive {{triggers}}"
	}
}`

func newTestResolver(t *testing.T, content string) *Resolver {
	t.Helper()
	r, err := NewResolver(writeTemplates(t, content), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func TestResolve_LocalizedFirst(t *testing.T) {
	r := newTestResolver(t, sampleTemplates)

	tpl, err := r.Resolve("ko", GroupDashboard, NameBriefing)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tpl != "localized briefing {{context_data}}" {
		t.Errorf("expected localized template, got %q", tpl)
	}
}

func TestResolve_LegacyFallback(t *testing.T) {
	r := newTestResolver(t, sampleTemplates)

	// No localized "proactive" entry; must fall back to the legacy form.
	tpl, err := r.Resolve("ko", GroupDashboard, NameProactive)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tpl != "legacy proactive {{triggers}}" {
		t.Errorf("expected legacy template, got %q", tpl)
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := newTestResolver(t, sampleTemplates)

	_, err := r.Resolve("ko", GroupDashboard, "missing")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestResolve_MissingFileStartsEmpty(t *testing.T) {
	r, err := NewResolver(filepath.Join(t.TempDir(), "absent.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResolver with absent file: %v", err)
	}

	if _, err := r.Resolve("ko", GroupDashboard, NameBriefing); err == nil {
		t.Error("expected lookup error on empty resolver")
	}
}

func TestSystemInstruction_SourceThenDefaultThenBuiltin(t *testing.T) {
	r := newTestResolver(t, sampleTemplates)

	if got := r.SystemInstruction("ko", "terminal"); got != "terminal instruction" {
		t.Errorf("expected source-specific instruction, got %q", got)
	}
	if got := r.SystemInstruction("ko", "unknown-source"); got != DefaultSystemInstruction {
		t.Errorf("expected built-in default, got %q", got)
	}
}

func TestSystemInstruction_DefaultEntry(t *testing.T) {
	r := newTestResolver(t, `{"EXTERNAL_AI_HUB": {"default": "shared instruction"}}`)

	if got := r.SystemInstruction("ko", "anything"); got != "shared instruction" {
		t.Errorf("expected default entry, got %q", got)
	}
}

func TestReload_PicksUpChanges(t *testing.T) {
	path := writeTemplates(t, sampleTemplates)
	r, err := NewResolver(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	updated := `{"DASHBOARD_INTERNAL": {"briefing": "updated"}}`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("rewrite templates: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	tpl, err := r.Resolve("en", GroupDashboard, NameBriefing)
	if err != nil {
		t.Fatalf("Resolve after reload: %v", err)
	}
	if tpl != "updated" {
		t.Errorf("expected reloaded template, got %q", tpl)
	}
}

func TestRender_LiteralSubstitution(t *testing.T) {
	out := Render("ctx={{context_data}} cmd={{command}} again={{command}}", map[string]string{
		"context_data": `{"a":1}`,
		"command":      "play music",
	})

	want := `ctx={"a":1} cmd=play music again=play music`
	if out != want {
		t.Errorf("Render = %q, want %q", out, want)
	}
}
