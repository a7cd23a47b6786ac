package shield

import (
	"strings"
	"testing"
)

func TestProtectRemovesComments(t *testing.T) {
	html := `<html><!-- top secret --><body><p>Hi</p><!--
multi
line
--></body></html>`

	shielded, placeholders := Protect(html)

	if strings.Contains(shielded, "secret") || strings.Contains(shielded, "multi") {
		t.Errorf("comments survived shielding: %q", shielded)
	}
	if len(placeholders) != 0 {
		t.Errorf("comments must be dropped, not mapped, got %d placeholders", len(placeholders))
	}
}

func TestProtectReplacesFragileSpans(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		wantToken string
	}{
		{
			name:      "script span",
			html:      `<body><script src="a.js">var x = 1;</script></body>`,
			wantToken: "__sc1__",
		},
		{
			name:      "multi-line style",
			html:      "<head><style>\nbody { color: red; }\n</style></head>",
			wantToken: "__st1__",
		},
		{
			name:      "svg span",
			html:      `<div><svg viewBox="0 0 1 1"><path d="M0 0"/></svg></div>`,
			wantToken: "__sv1__",
		},
		{
			name:      "self-closing meta",
			html:      `<head><meta charset="utf-8"></head>`,
			wantToken: "__me1__",
		},
		{
			name:      "link tag",
			html:      `<head><link rel="stylesheet" href="s.css"></head>`,
			wantToken: "__li1__",
		},
		{
			name:      "uppercase tag",
			html:      `<body><SCRIPT>alert(1)</SCRIPT></body>`,
			wantToken: "__sc1__",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shielded, placeholders := Protect(tt.html)
			if !strings.Contains(shielded, tt.wantToken) {
				t.Errorf("shielded output %q missing token %s", shielded, tt.wantToken)
			}
			if _, ok := placeholders[tt.wantToken]; !ok {
				t.Errorf("placeholder map missing %s: %v", tt.wantToken, placeholders)
			}
		})
	}
}

func TestProtectCountsPerCategory(t *testing.T) {
	html := `<head><meta charset="utf-8"><meta name="a" content="b"><link href="s.css"></head>` +
		`<body><script>one()</script><script>two()</script><style>.a{}</style></body>`

	_, placeholders := Protect(html)

	want := []string{"__me1__", "__me2__", "__li1__", "__sc1__", "__sc2__", "__st1__"}
	if len(placeholders) != len(want) {
		t.Fatalf("placeholder count = %d, want %d: %v", len(placeholders), len(want), placeholders)
	}
	for _, token := range want {
		if _, ok := placeholders[token]; !ok {
			t.Errorf("missing token %s", token)
		}
	}
}

func TestRoundTripRestoresOriginalMinusComments(t *testing.T) {
	html := `<html><head><meta charset="utf-8"><style>body{margin:0}</style></head>` +
		`<body><!-- note --><svg><circle r="1"/></svg><script>go()</script></body></html>`

	shielded, placeholders := Protect(html)
	restored := Restore(shielded, placeholders)

	want := strings.ReplaceAll(html, "<!-- note -->", "")
	if restored != want {
		t.Errorf("round trip mismatch:\n got %q\nwant %q", restored, want)
	}
}

func TestRestoreReplacesAllOccurrences(t *testing.T) {
	placeholders := map[string]string{"__sc1__": "<script>x()</script>"}
	got := Restore("__sc1__ and again __sc1__", placeholders)
	want := "<script>x()</script> and again <script>x()</script>"
	if got != want {
		t.Errorf("Restore = %q, want %q", got, want)
	}
}
