// Package action implements the tagged-variant parse-once representation
// of rule actions described in spec.md §9: action strings like
// "label:foo" are parsed exactly once, at config load, into a closed
// set of variants instead of being re-parsed at every call site.
package action

import (
	"sort"
	"strings"

	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

// Kind is the closed set of action kinds the runtime understands.
// Source adapters declare which of these they support via
// adapter.Source.SupportedActions(); anything else is rejected at
// config load.
type Kind string

const (
	Save     Kind = "save"
	Archive  Kind = "archive"
	Label    Kind = "label"
	Forward  Kind = "forward"
	Delete   Kind = "delete"
	MarkRead Kind = "mark-read"
)

var knownKinds = map[Kind]bool{
	Save:     true,
	Archive:  true,
	Label:    true,
	Forward:  true,
	Delete:   true,
	MarkRead: true,
}

// Action pairs a Kind with an optional argument ("label:x" -> Kind
// Label, Arg "x"). Save, Archive, Delete, and MarkRead never carry an
// argument.
type Action struct {
	Kind Kind
	Arg  string
}

// Parse splits "kind" or "kind:arg" into an Action. Unknown kinds, and
// an argument on a kind that takes none, produce a ConfigError,
// matching the fail-fast config load policy.
func Parse(s string) (Action, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Action{}, cerrors.Config("empty action string", nil)
	}
	kind, arg, _ := strings.Cut(s, ":")
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	if !knownKinds[k] {
		return Action{}, cerrors.Config("unknown action kind: "+string(k), nil).
			WithContext("action", s)
	}
	arg = strings.TrimSpace(arg)
	if arg != "" && (k == Save || k == Archive || k == Delete || k == MarkRead) {
		return Action{}, cerrors.Config("action kind takes no argument: "+string(k), nil).
			WithContext("action", s)
	}
	return Action{Kind: k, Arg: arg}, nil
}

// ParseAll parses a list of action strings and sorts the result so
// Save always comes first when present, per spec.md §4.8 ("save is
// always applied first if present"); relative order of every other
// action is preserved (stable sort).
func ParseAll(strs []string) ([]Action, error) {
	out := make([]Action, 0, len(strs))
	for _, s := range strs {
		a, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Kind == Save && out[j].Kind != Save
	})
	return out, nil
}

// String round-trips an Action back to its "kind" or "kind:arg" form.
func (a Action) String() string {
	if a.Arg == "" {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + a.Arg
}

// Set is a small ordered-insertion set of Actions, keyed by their
// String() form, used by the state manager to track actions_applied.
type Set struct {
	order []string
	items map[string]Action
}

// NewSet builds a Set from zero or more actions.
func NewSet(actions ...Action) *Set {
	s := &Set{items: make(map[string]Action)}
	for _, a := range actions {
		s.Add(a)
	}
	return s
}

// Add inserts a into the set if not already present.
func (s *Set) Add(a Action) {
	key := a.String()
	if _, ok := s.items[key]; ok {
		return
	}
	s.items[key] = a
	s.order = append(s.order, key)
}

// Contains reports whether a is present in the set.
func (s *Set) Contains(a Action) bool {
	_, ok := s.items[a.String()]
	return ok
}

// ContainsAll reports whether every action in required is present.
func (s *Set) ContainsAll(required []Action) bool {
	for _, a := range required {
		if !s.Contains(a) {
			return false
		}
	}
	return true
}

// Missing returns the subset of required not currently in the set.
func (s *Set) Missing(required []Action) []Action {
	var out []Action
	for _, a := range required {
		if !s.Contains(a) {
			out = append(out, a)
		}
	}
	return out
}

// Slice returns the set's contents in insertion order.
func (s *Set) Slice() []Action {
	out := make([]Action, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key])
	}
	return out
}

// Strings returns the set's contents as their string form, in
// insertion order — the shape persisted in state files.
func (s *Set) Strings() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// SetFromStrings rebuilds a Set from its persisted string form.
func SetFromStrings(strs []string) (*Set, error) {
	s := &Set{items: make(map[string]Action)}
	for _, str := range strs {
		a, err := Parse(str)
		if err != nil {
			return nil, err
		}
		s.Add(a)
	}
	return s, nil
}
