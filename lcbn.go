package schedcore

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies what kind of callback an LCBN represents. The taxonomy
// is grounded on original_source/deps/uv/src/scheduler.h's lcbn_type
// enum: the distilled spec leaves "kind" as an opaque label, the original
// resolves it to this closed set.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimer
	KindPoll
	KindWork
	KindClose
	KindIdle
	KindPrepare
	KindCheck
	// KindAny is the wildcard NextLCBNType returns outside REPLAY mode,
	// once divergence has been declared, or whenever the backend declines
	// to constrain the loop phase (spec §9, Open Question a).
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindPoll:
		return "poll"
	case KindWork:
		return "work"
	case KindClose:
		return "close"
	case KindIdle:
		return "idle"
	case KindPrepare:
		return "prepare"
	case KindCheck:
		return "check"
	case KindAny:
		return "any"
	default:
		return "unknown"
	}
}

func ParseKind(s string) Kind {
	for k := KindTimer; k <= KindAny; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// Path identifies an LCBN's position in the causation tree: the sequence
// of birth orders from the root down to (and including) this node. Per
// spec §9's Design Note, identity under replay must be positional, not
// pointer-based -- two LCBNs compare equal here iff they occupy the same
// structural position, regardless of which run produced them.
type Path []uint32

// Child returns the Path of the nth (0-based) child born under p.
func (p Path) Child(birthOrder uint32) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = birthOrder
	return child
}

// Parent returns p's parent path and true, or (nil, false) if p is a root.
func (p Path) Parent() (Path, bool) {
	if len(p) == 0 {
		return nil, false
	}
	return p[:len(p)-1], true
}

// String renders the path as dot-separated birth orders, e.g. "0.2.1".
// The empty path (root) renders as "root".
func (p Path) String() string {
	if len(p) == 0 {
		return "root"
	}
	parts := make([]string, len(p))
	for i, v := range p {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ".")
}

// ParsePath parses the String() form back into a Path.
func ParsePath(s string) (Path, error) {
	if s == "root" {
		return Path{}, nil
	}
	parts := strings.Split(s, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("schedcore: malformed lcbn path %q: %w", s, err)
		}
		p[i] = uint32(v)
	}
	return p, nil
}

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// LCBN is a Logical Callback Node: the identity of one callback
// occurrence, addressed by its kind and its position in the causation
// tree rather than by any runtime pointer or address.
type LCBN struct {
	Kind Kind
	Path Path

	// ExecIndex is the monotonic global execution index a backend
	// assigns when it observes this LCBN's AFTER_EXEC_CB landmark, that
	// is, when the callback finishes, not when it starts running. Zero
	// until assigned.
	ExecIndex uint64
}

// SamePosition reports whether two LCBNs occupy the same tree position
// with the same kind -- the comparison CBTree replay uses to match a
// live callback against the schedule's expected next LCBN.
func (n LCBN) SamePosition(other LCBN) bool {
	return n.Kind == other.Kind && n.Path.Equal(other.Path)
}

func (n LCBN) String() string {
	return fmt.Sprintf("%s@%s", n.Kind, n.Path)
}
