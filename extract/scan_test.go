package extract

import (
	"reflect"
	"testing"
)

func TestObjectSpan(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{in: `{"a":1}`, want: `{"a":1}`, wantOK: true},
		{in: "```json\n{\"a\":{\"b\":2}}\n```", want: `{"a":{"b":2}}`, wantOK: true},
		{in: `no braces`, wantOK: false},
		{in: `{"a":1`, wantOK: false},
		{in: `} before {`, wantOK: false},
	}

	for _, tt := range tests {
		got, ok := objectSpan(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("objectSpan(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSegments(t *testing.T) {
	got := segments("  a \n\n\tb\n \n")
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("segments() = %q", got)
	}
}

func TestPreviewMatcher(t *testing.T) {
	m := newPreviewMatcher("content")
	tests := []struct {
		buf    string
		want   string
		wantOK bool
	}{
		{buf: `{"conte`, wantOK: false},
		{buf: `{"content": `, wantOK: false},
		{buf: `{"content": "`, want: "", wantOK: true},
		{buf: `{"content": "Hel`, want: "Hel", wantOK: true},
		{buf: `{"content":"line\`, want: "line", wantOK: true},
		{buf: `{"content":"line\n`, want: "line\n", wantOK: true},
		{buf: `{"content":"say \"hi\"`, want: `say "hi"`, wantOK: true},
		{buf: `{"content":"x\u00`, want: "x", wantOK: true},
		{buf: `{"content":"smile \uD83D`, want: "smile ", wantOK: true},
		{buf: `{"content":"smile \uD83D\uDE`, want: "smile ", wantOK: true},
		{buf: `{"content":"smile \uD83D\uDE00`, want: "smile \U0001F600", wantOK: true},
		{buf: `{"content":"path \\uD83D`, want: `path \uD83D`, wantOK: true},
		{buf: `{"content":"done","other":"y"}`, want: "done", wantOK: true},
	}

	for _, tt := range tests {
		got, ok := m.Match(tt.buf)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.buf, got, ok, tt.want, tt.wantOK)
		}
	}
}
