package utils

import (
	"strings"
	"testing"
)

func TestStr(t *testing.T) {
	if Str(nil) != "" {
		t.Error("nil should stringify empty")
	}
	if Str(42) != "42" {
		t.Errorf("Str(42) = %q", Str(42))
	}
	if Str("x") != "x" {
		t.Errorf("Str(x) = %q", Str("x"))
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet("short", 100); got != "short" {
		t.Errorf("Snippet = %q", got)
	}
	long := strings.Repeat("a", 200)
	got := Snippet(long, 50)
	if !strings.HasPrefix(got, strings.Repeat("a", 50)) || !strings.HasSuffix(got, "…") {
		t.Errorf("Snippet = %q", got)
	}
	if len(got) >= len(long) {
		t.Errorf("Snippet did not truncate: %d bytes", len(got))
	}
}

func TestUrlQuery(t *testing.T) {
	if got := UrlQuery("acme annual revenue"); got != "acme+annual+revenue" {
		t.Errorf("UrlQuery = %q", got)
	}
}
