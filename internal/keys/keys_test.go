package keys

import (
	"path"
	"testing"
)

func TestEntity(t *testing.T) {
	tests := []struct {
		kind, id string
		expected string
	}{
		{"User", "u1", "User:u1"},
		{"Member", "acme:7", "Member:acme:7"},
		{"File", "dir/name.txt", "File:dir/name.txt"},
	}
	for _, tt := range tests {
		if got := Entity(tt.kind, tt.id); got != tt.expected {
			t.Errorf("Entity(%q, %q) = %q, want %q", tt.kind, tt.id, got, tt.expected)
		}
	}
}

func TestIndexAndCount(t *testing.T) {
	if got := Index("User", "u1", "age", "30"); got != "User:u1:age:30" {
		t.Errorf("expected 'User:u1:age:30', got %q", got)
	}
	if got := Count("User"); got != "User:meta:count" {
		t.Errorf("expected 'User:meta:count', got %q", got)
	}
	if got := Members("User"); got != "User" {
		t.Errorf("expected 'User', got %q", got)
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := []struct {
		in, expected string
	}{
		{"User", "User"},
		{"a*b", `a\*b`},
		{"a?b", `a\?b`},
		{"[x]", `\[x\]`},
		{`a\b`, `a\\b`},
	}
	for _, tt := range tests {
		if got := EscapeGlob(tt.in); got != tt.expected {
			t.Errorf("EscapeGlob(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
	}
}

func TestIndexPattern_EscapesLiteralSegments(t *testing.T) {
	pattern := IndexPattern("K*", "f?")
	if pattern != `K\*:*:f\?:*` {
		t.Fatalf("unexpected pattern %q", pattern)
	}
	if ok, _ := path.Match(pattern, "K*:1:f?:v"); !ok {
		t.Error("expected the literal key to match")
	}
	if ok, _ := path.Match(pattern, "Kx:1:fy:v"); ok {
		t.Error("expected glob characters to be literal")
	}
}

func TestIndexPattern_Matches(t *testing.T) {
	pattern := IndexPattern("User", "age")
	if pattern != "User:*:age:*" {
		t.Fatalf("unexpected pattern %q", pattern)
	}

	// Redis glob semantics agree with path.Match for patterns without '/'.
	tests := []struct {
		key   string
		match bool
	}{
		{"User:u1:age:30", true},
		{"User:acme:7:age:", true},
		{"User:u1:name:ada", false},
		{"Post:u1:age:30", false},
		{"User:meta:count", false},
	}
	for _, tt := range tests {
		got, err := path.Match(pattern, tt.key)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.match {
			t.Errorf("%q: expected match=%v, got %v", tt.key, tt.match, got)
		}
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		kind  string
		field string
		want  []IndexEntry
	}{
		{"simple", "User:u1:age:30", "User", "age", []IndexEntry{{"u1", "30"}}},
		{"composite id", "Member:acme:7:role:admin", "Member", "role", []IndexEntry{{"acme:7", "admin"}}},
		{"empty value", "User:u1:name:", "User", "name", []IndexEntry{{"u1", ""}}},
		{"value with separator", "User:u1:note:a:b", "User", "note", []IndexEntry{{"u1", "a:b"}}},
		{"ambiguous", "User:x:age:y:age:5", "User", "age", []IndexEntry{{"x", "y:age:5"}, {"x:age:y", "5"}}},
		{"other kind", "Post:u1:age:30", "User", "age", nil},
		{"other field", "User:u1:name:ada", "User", "age", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIndex(tt.key, tt.kind, tt.field)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("candidate %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestParseIndex_RoundTrip(t *testing.T) {
	ids := []string{"u1", "a:b", "日本", "with space", "*glob?"}
	values := []string{"", "0", "x:y", "true", "2024-01-01T00:00:00.000000000Z"}
	for _, id := range ids {
		for _, value := range values {
			key := Index("Kind", id, "f", value)
			found := false
			for _, c := range ParseIndex(key, "Kind", "f") {
				if c.ID == id && c.Value == value {
					found = true
				}
			}
			if !found {
				t.Errorf("(%q, %q) not recovered from %q", id, value, key)
			}
		}
	}
}

func TestEntityID(t *testing.T) {
	if id, ok := EntityID("User:a:b", "User"); !ok || id != "a:b" {
		t.Errorf("expected 'a:b', got %q (%v)", id, ok)
	}
	if _, ok := EntityID("Post:a", "User"); ok {
		t.Error("expected no id for another kind")
	}
	if _, ok := EntityID("User:", "User"); ok {
		t.Error("expected no id for an empty id")
	}
}

func BenchmarkParseIndex(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ParseIndex("Member:acme:7:role:admin", "Member", "role")
	}
}
