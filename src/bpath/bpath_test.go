package bpath

import (
	"testing"

	"ustr"
)

func TestCanonicalizeCollapsesDotAndDotDot(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/a/./b", "/b"},
		{"/a/../b", "/b"},
		{"/a//b", "/b"},
		{"/", "/"},
		{"a", "/a"},
	}
	for _, c := range cases {
		got := Canonicalize(ustr.Ustr(c.in))
		if !got.Eq(ustr.Ustr(c.want)) {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBasenameReturnsFinalComponent(t *testing.T) {
	if got := Basename(ustr.Ustr("/a/b/c")); !got.Eq(ustr.Ustr("c")) {
		t.Errorf("Basename(/a/b/c) = %q, want %q", got, "c")
	}
	if got := Basename(ustr.Ustr("/")); !got.Eq(ustr.Ustr("/")) {
		t.Errorf("Basename(/) = %q, want \"/\"", got)
	}
}
