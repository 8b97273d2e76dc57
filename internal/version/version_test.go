package version

import "testing"

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
		{"14.1", "v14.1.0"},
		{"3", "v3.0.0"},
		{"1.2.3.4", "v1.2.3"},
		{"2.0.0-rc.1", "v2.0.0-rc.1"},
		{"1.2.3+build.5", "v1.2.3"},
		{"007.1.0", "v7.1.0"},
		{" 1.0.0 ", "v1.0.0"},
		{"latest", ""},
		{"", ""},
		{"abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMajor(t *testing.T) {
	if m, ok := Major("14.1.0"); !ok || m != 14 {
		t.Errorf("expected (14, true), got (%d, %v)", m, ok)
	}
	if _, ok := Major("nightly"); ok {
		t.Error("unparseable version should not report a major component")
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.9.9", "1.10.0", -1},
		{"14.1.0", "13.0.0", 1},
		{"2.0.0", "v2.0.0", 0},
		{"2.0.0-rc.1", "2.0.0", -1},
		{"garbage", "0.0.1", -1},
		{"garbage", "other", 0},
	}

	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("1.2", "1.2.0") {
		t.Error("1.2 and 1.2.0 should be equal")
	}
	if Equal("1.2.0", "1.2.1") {
		t.Error("1.2.0 and 1.2.1 should differ")
	}
	if !Equal("nightly", "nightly") {
		t.Error("identical unparseable strings should be equal")
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"ripgrep 14.1.0\n\nfeatures:+pcre2", "14.1.0"},
		{"Python 3.12.1", "3.12.1"},
		{"jq-1.7.1", "1.7.1"},
		{"go version go1.22.0 linux/amd64", "1.22.0"},
		{"no version here", ""},
	}

	for _, tt := range tests {
		if got := Extract(tt.text); got != tt.want {
			t.Errorf("Extract(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
