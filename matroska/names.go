package matroska

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishalkuo/bimap"
)

var (
	lacingNames = newNameMap(map[Lacing]string{
		LacingNone:  "none",
		LacingXiph:  "xiph",
		LacingFixed: "fixed",
		LacingEBML:  "ebml",
		LacingAuto:  "auto",
	})
	policyNames = newNameMap(map[Policy]string{
		PolicyNoSimple:     "no-simple",
		PolicyAlwaysSimple: "always-simple",
		PolicySimpleAuto:   "simple-auto",
	})
)

func newNameMap[K comparable](names map[K]string) *bimap.BiMap[K, string] {
	m := bimap.NewBiMap[K, string]()
	for k, v := range names {
		m.Insert(k, v)
	}
	return m
}

func (l Lacing) String() string {
	if name, ok := lacingNames.Get(l); ok {
		return name
	}
	return "lacing(" + strconv.Itoa(int(l)) + ")"
}

// ParseLacing accepts the names printed by Lacing.String, case-insensitively.
func ParseLacing(s string) (Lacing, error) {
	if l, ok := lacingNames.GetInverse(strings.ToLower(strings.TrimSpace(s))); ok {
		return l, nil
	}
	return LacingAuto, errors.Errorf("unknown lacing %q", s)
}

func (p Policy) String() string {
	if name, ok := policyNames.Get(p); ok {
		return name
	}
	return "policy(" + strconv.Itoa(int(p)) + ")"
}

// ParsePolicy accepts the names printed by Policy.String, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	if p, ok := policyNames.GetInverse(strings.ToLower(strings.TrimSpace(s))); ok {
		return p, nil
	}
	return PolicySimpleAuto, errors.Errorf("unknown block policy %q", s)
}

// LacingNames lists the accepted lacing names.
func LacingNames() []string {
	return []string{"none", "xiph", "fixed", "ebml", "auto"}
}

// PolicyNames lists the accepted policy names.
func PolicyNames() []string {
	return []string{"no-simple", "always-simple", "simple-auto"}
}
