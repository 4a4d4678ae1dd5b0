package subject

import "testing"

func TestNewRejectsInvalidPatterns(t *testing.T) {
	cases := []string{"", "a..b", ">.a", "a.>.b"}
	for _, pattern := range cases {
		if _, err := New(pattern); err == nil {
			t.Errorf("New(%q): expected error, got nil", pattern)
		}
	}
}

func TestMatchesExactAndWildcard(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"foo", "foo", true},
		{"foo", "bar", false},
		{"foo.*", "foo.bar", true},
		{"foo.*", "foo.bar.baz", false},
		{"foo.>", "foo.bar", true},
		{"foo.>", "foo.bar.baz", true},
		{"foo.>", "foo", false},
		{"a.b.>", "a.b.c.d", true},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.d", false},
	}
	for _, c := range cases {
		top, err := New(c.pattern)
		if err != nil {
			t.Fatalf("New(%q): %v", c.pattern, err)
		}
		if got := top.Matches(c.subject); got != c.want {
			t.Errorf("Topic(%q).Matches(%q) = %v, want %v", c.pattern, c.subject, got, c.want)
		}
	}
}

// TestWildcardSoundness exercises spec's "any non-wildcard prefix p of s:
// p.> matches s" universal property. When p is the whole subject, p.> must
// not match, since `>` requires at least one more token.
func TestWildcardSoundness(t *testing.T) {
	subject := "a.b.c.d"
	prefixes := []string{"a", "a.b", "a.b.c", "a.b.c.d"}
	for _, p := range prefixes {
		top, err := New(p + ".>")
		if err != nil {
			t.Fatalf("New(%q): %v", p+".>", err)
		}
		want := p != subject
		if got := top.Matches(subject); got != want {
			t.Errorf("%s.>.Matches(%s) = %v, want %v", p, subject, got, want)
		}
	}
}
