package recovery

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"fenced with tag", "text\n```json\n{\"a\": {\"b\": 1}}\n```\nmore", `{"a": {"b": 1}}`},
		{"fenced without tag", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"greedy span", `prefix {"a": 1} middle {"b": 2} suffix`, `{"a": 1} middle {"b": 2}`},
		{"no braces", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.raw); got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestScrubControl(t *testing.T) {
	got, _ := scrubControl("a\x00b\nc\td\u200be")
	if want := "a b\nc\tde"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got, _ := normalizeWhitespace("{ \"a\":\n\t \"b c\"   }")
	if want := `{ "a": "b c" }`; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEscapeJSONString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`already \"fine\" \n \u00e9`, `already \"fine\" \n \u00e9`},
		{`C:\temp\x`, `C:\temp\\x`},
		{"tab\there", `tab\there`},
		{"bell\x07", `bell\u0007`},
		{`broken \u12`, `broken \\u12`},
	}
	for _, tt := range tests {
		if got := escapeJSONString(tt.in); got != tt.want {
			t.Errorf("escapeJSONString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReescapeFieldsOnlyTouchesNamedFields(t *testing.T) {
	apply := reescapeFields([]string{"summary"})
	text := `{"summary": "a\'b", "other": "c\'d"}`
	got, ok := apply(text)
	if !ok {
		t.Fatal("expected a repair")
	}
	if want := `{"summary": "a\\'b", "other": "c\'d"}`; got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if _, ok := apply(`{"summary": "clean"}`); ok {
		t.Error("clean value should not be reported as repaired")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("拖延症", 2); got != "拖延" {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
	if got := Preview("ok", 10); got != "ok" {
		t.Errorf("expected short input unchanged, got %q", got)
	}
}
