package routing

import (
	"errors"
	"testing"
)

func testResolver() *Resolver {
	return NewResolver([]Trunk{
		{Name: "kh-mobile", Host: "10.0.0.5", Prefixes: []string{"85512", "85510"}},
		{Name: "kh", Host: "10.0.0.6", Prefixes: []string{"855"}},
		{Name: "default", Host: "127.0.0.1"},
	})
}

func TestResolver_LongestPrefixWins(t *testing.T) {
	r := testResolver()

	in, err := r.Resolve("2442", "+85512334667", Hints{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.TrunkName != "kh-mobile" {
		t.Fatalf("expected kh-mobile trunk, got %q", in.TrunkName)
	}
	if in.DialString != "85512334667@10.0.0.5" {
		t.Fatalf("unexpected dial string %q", in.DialString)
	}
}

func TestResolver_FallsBackToShorterPrefixThenCatchAll(t *testing.T) {
	r := testResolver()

	in, err := r.Resolve("2442", "+85598000111", Hints{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.TrunkName != "kh" {
		t.Fatalf("expected kh trunk, got %q", in.TrunkName)
	}

	in, err = r.Resolve("2442", "+15551230000", Hints{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.TrunkName != "default" || in.DialString != "15551230000@127.0.0.1" {
		t.Fatalf("unexpected instruction %+v", in)
	}
}

func TestResolver_Deterministic(t *testing.T) {
	r := testResolver()
	a, err := r.Resolve("2442", "+85512334667", Hints{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, err := r.Resolve("2442", "+85512334667", Hints{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if a != b {
		t.Fatalf("resolution not deterministic: %+v vs %+v", a, b)
	}
}

func TestResolver_RejectsMalformedDestination(t *testing.T) {
	r := testResolver()
	for _, dest := range []string{"", "+", "abc", "+855x1", "855 12"} {
		if _, err := r.Resolve("2442", dest, Hints{}); !errors.Is(err, ErrInvalidRoute) {
			t.Fatalf("destination %q: expected ErrInvalidRoute, got %v", dest, err)
		}
	}
}

func TestResolver_RejectsEmptySource(t *testing.T) {
	r := testResolver()
	if _, err := r.Resolve("", "+85512334667", Hints{}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}

func TestResolver_NoTrunkMatches(t *testing.T) {
	r := NewResolver([]Trunk{{Name: "kh", Host: "10.0.0.6", Prefixes: []string{"855"}}})
	if _, err := r.Resolve("2442", "+15551230000", Hints{}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}

func TestResolver_CallerSuppliedDialString(t *testing.T) {
	r := testResolver()

	in, err := r.Resolve("2442", "+85512334667", Hints{DialString: "85512334667@127.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if in.DialString != "85512334667@127.0.0.1" {
		t.Fatalf("hint must be honored verbatim, got %q", in.DialString)
	}

	if _, err := r.Resolve("2442", "+85512334667", Hints{DialString: "not-a-dial-string"}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute for malformed hint, got %v", err)
	}
}
