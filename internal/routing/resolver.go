package routing

import (
	"errors"
	"strings"
)

// Resolver maps an origination request's source/destination onto a dial
// string the switch can execute.
//
// It is a pure function over its configuration: no I/O, no retries, and
// deterministic for identical inputs. Trunk selection is longest-prefix
// match on the normalized destination.

var ErrInvalidRoute = errors.New("routing: no route to destination")

// Trunk is one reachable egress path.
type Trunk struct {
	// Name identifies the trunk in logs and instructions.
	Name string

	// Host is the network address embedded in the dial string,
	// e.g. "127.0.0.1" or "sip-gw.internal:5060".
	Host string

	// Prefixes restrict the trunk to destinations starting with one of
	// these digit strings (after normalization). An empty list makes the
	// trunk a catch-all.
	Prefixes []string
}

// Hints are optional caller-supplied routing overrides.
type Hints struct {
	// DialString, when set, is used verbatim after a syntactic check.
	// Somleng-style requesters precompute it in routing_instructions.
	DialString string
}

// Instruction is the resolved routing output.
type Instruction struct {
	DialString string
	TrunkName  string
}

type Resolver struct {
	trunks []Trunk
}

func NewResolver(trunks []Trunk) *Resolver {
	return &Resolver{trunks: trunks}
}

func (r *Resolver) Resolve(source, destination string, hints Hints) (Instruction, error) {
	if strings.TrimSpace(source) == "" {
		return Instruction{}, ErrInvalidRoute
	}

	if hints.DialString != "" {
		if !validDialString(hints.DialString) {
			return Instruction{}, ErrInvalidRoute
		}
		return Instruction{DialString: hints.DialString, TrunkName: "caller-supplied"}, nil
	}

	number, ok := normalizeDestination(destination)
	if !ok {
		return Instruction{}, ErrInvalidRoute
	}

	trunk, ok := r.pickTrunk(number)
	if !ok {
		return Instruction{}, ErrInvalidRoute
	}
	return Instruction{
		DialString: number + "@" + trunk.Host,
		TrunkName:  trunk.Name,
	}, nil
}

// pickTrunk selects the trunk with the longest matching prefix. A
// catch-all trunk (no prefixes) matches with length zero, so any explicit
// prefix beats it. Ties resolve to the first configured trunk, keeping
// resolution deterministic.
func (r *Resolver) pickTrunk(number string) (Trunk, bool) {
	best := -1
	var out Trunk
	for _, t := range r.trunks {
		if t.Host == "" {
			continue
		}
		if len(t.Prefixes) == 0 {
			if best < 0 {
				best = 0
				out = t
			}
			continue
		}
		for _, p := range t.Prefixes {
			if p == "" || !strings.HasPrefix(number, p) {
				continue
			}
			if len(p) > best {
				best = len(p)
				out = t
			}
		}
	}
	return out, best >= 0
}

// normalizeDestination strips a leading "+" and rejects anything that is
// not a plain digit string afterwards. The dial string carries the bare
// national/international digits (Somleng convention).
func normalizeDestination(destination string) (string, bool) {
	d := strings.TrimSpace(destination)
	d = strings.TrimPrefix(d, "+")
	if d == "" {
		return "", false
	}
	for _, r := range d {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return d, true
}

// validDialString accepts "<user>@<host>" with both parts non-empty.
func validDialString(s string) bool {
	user, host, ok := strings.Cut(s, "@")
	return ok && user != "" && host != "" && !strings.ContainsAny(s, " \t\r\n")
}
