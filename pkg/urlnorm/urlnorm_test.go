package urlnorm

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		a, b  string
		equal bool
	}{
		{"https://Example.com/", "http://example.com", true},
		{"https://www.example.com/foo", "https://example.com/foo/", true},
		{"https://example.com/foo?utm_source=x", "https://example.com/foo", true},
		{"https://example.com/a", "https://example.com/b", false},
		{"https://directory.com/biz?id=1", "https://directory.com/biz?id=2", false},
		{"https://directory.com/biz?id=1", "https://directory.com/biz?id=1&utm=y", true},
	}
	for _, c := range cases {
		got := Equal(c.a, c.b)
		if got != c.equal {
			t.Errorf("Equal(%q, %q) = %v, want %v", c.a, c.b, got, c.equal)
		}
	}
}
