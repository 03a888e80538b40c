// Package room holds the room operating mode, its legal transitions, and the
// durable records of the current mode and of combine/split operations.
package room

import (
	"fmt"
)

// Scope selects which nodes a combine involves.
type Scope string

const (
	ScopeAll   Scope = "All"
	ScopeNode1 Scope = "Node1"
	ScopeNode2 Scope = "Node2"
)

// ParseScope accepts the canonical names and lower-case aliases.
func ParseScope(value string) (Scope, error) {
	switch value {
	case "All", "all":
		return ScopeAll, nil
	case "Node1", "node1":
		return ScopeNode1, nil
	case "Node2", "node2":
		return ScopeNode2, nil
	}
	return "", fmt.Errorf("unknown scope %q", value)
}

// State is the room operating mode.
type State int

const (
	Split State = iota
	CombiningAll
	CombiningNode1
	CombiningNode2
	CombinedAll
	CombinedNode1
	CombinedNode2
)

var stateNames = map[State]string{
	Split:          "Split",
	CombiningAll:   "CombiningAll",
	CombiningNode1: "CombiningNode1",
	CombiningNode2: "CombiningNode2",
	CombinedAll:    "CombinedAll",
	CombinedNode1:  "CombinedNode1",
	CombinedNode2:  "CombinedNode2",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState parses the String form of a state.
func ParseState(value string) (State, error) {
	for state, name := range stateNames {
		if name == value {
			return state, nil
		}
	}
	return Split, fmt.Errorf("unknown room state %q", value)
}

func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("invalid room state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsCombined reports whether s is a terminal combined state.
func (s State) IsCombined() bool {
	switch s {
	case CombinedAll, CombinedNode1, CombinedNode2:
		return true
	}
	return false
}

// IsCombining reports whether s is a transient combining state.
func (s State) IsCombining() bool {
	switch s {
	case CombiningAll, CombiningNode1, CombiningNode2:
		return true
	}
	return false
}

// Persistable reports whether s may be written to the state record.
func (s State) Persistable() bool {
	return s == Split || s.IsCombined()
}

// Scope returns the scope of a combining or combined state.
func (s State) Scope() (Scope, bool) {
	switch s {
	case CombiningAll, CombinedAll:
		return ScopeAll, true
	case CombiningNode1, CombinedNode1:
		return ScopeNode1, true
	case CombiningNode2, CombinedNode2:
		return ScopeNode2, true
	case Split:
		return "", false
	}
	return "", false
}

// Terminal returns the Combined state for scope.
func Terminal(scope Scope) (State, error) {
	switch scope {
	case ScopeAll:
		return CombinedAll, nil
	case ScopeNode1:
		return CombinedNode1, nil
	case ScopeNode2:
		return CombinedNode2, nil
	}
	return Split, fmt.Errorf("unknown scope %q", scope)
}

// Combining returns the transient Combining state for scope.
func Combining(scope Scope) (State, error) {
	switch scope {
	case ScopeAll:
		return CombiningAll, nil
	case ScopeNode1:
		return CombiningNode1, nil
	case ScopeNode2:
		return CombiningNode2, nil
	}
	return Split, fmt.Errorf("unknown scope %q", scope)
}

// CanTransition reports whether from -> to is legal: Split to Combining,
// Combining to Combined of the same scope, and Combined to Split.
func CanTransition(from, to State) bool {
	switch {
	case from == Split:
		return to.IsCombining()
	case from.IsCombining():
		fromScope, _ := from.Scope()
		toScope, _ := to.Scope()
		return to.IsCombined() && fromScope == toScope
	case from.IsCombined():
		return to == Split
	}
	return false
}
