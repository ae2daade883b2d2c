// Package uid generates DICOM unique identifiers for studies, series and
// instances. Identifiers are dotted-numeric, at most 64 characters, and are
// composed of a fixed organizational root, a scope component, a timestamp
// with microsecond resolution and a random suffix.
package uid

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// DefaultRoot is the organizational root used when none is configured.
const DefaultRoot = "1.2.826.0.1.3680043.8.498"

// MaxLength is the DICOM limit on UID length.
const MaxLength = 64

// Scope identifies which level of the study hierarchy a UID is created for.
type Scope int

const (
	ScopeStudy Scope = iota + 1
	ScopeSeries
	ScopeInstance
)

func (s Scope) String() string {
	switch s {
	case ScopeStudy:
		return "study"
	case ScopeSeries:
		return "series"
	case ScopeInstance:
		return "instance"
	default:
		return "unknown"
	}
}

// Generator creates UIDs under a fixed root. The zero value is not usable;
// use NewGenerator. Generators are safe for concurrent use: the only shared
// state is the process-wide random source.
type Generator struct {
	root string
	now  func() time.Time
}

// NewGenerator returns a generator rooted at root, or at DefaultRoot when
// root is empty.
func NewGenerator(root string) *Generator {
	if root == "" {
		root = DefaultRoot
	}
	return &Generator{root: root, now: time.Now}
}

// New composes a UID for the given scope. The random suffix is shortened to
// honor the 64-character limit; the root and timestamp never are. It fails
// only when the fixed components alone exceed the limit.
func (g *Generator) New(scope Scope) (string, error) {
	ts := g.now().UTC()
	stamp := ts.Format("20060102150405") + fmt.Sprintf("%06d", ts.Nanosecond()/1000)

	fixed := g.root + "." + strconv.Itoa(int(scope)) + "." + stamp + "."
	room := MaxLength - len(fixed)
	if room < 1 {
		return "", fmt.Errorf("uid: root %q leaves no room for a random component", g.root)
	}

	suffix := strconv.FormatUint(rand.Uint64(), 10)
	if len(suffix) > room {
		suffix = suffix[:room]
		// A truncated decimal may start with a zero, which DICOM forbids
		// for multi-digit components.
		suffix = strings.TrimLeft(suffix, "0")
		if suffix == "" {
			suffix = "1"
		}
	}

	return fixed + suffix, nil
}

// MustNew is New but panics on failure. Composition only fails on a
// misconfigured root, so callers with a known-good root use this form.
func (g *Generator) MustNew(scope Scope) string {
	u, err := g.New(scope)
	if err != nil {
		panic(err)
	}
	return u
}

// IsValid reports whether s is a syntactically valid DICOM UID: non-empty,
// at most 64 characters, dotted numeric components without leading zeros.
func IsValid(s string) bool {
	if s == "" || len(s) > MaxLength {
		return false
	}
	for _, comp := range strings.Split(s, ".") {
		if comp == "" {
			return false
		}
		if len(comp) > 1 && comp[0] == '0' {
			return false
		}
		for _, c := range comp {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
