package role

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Set maps role name to its single declaration.
type Set map[string]Role

// Add inserts or replaces a declaration.
func (s Set) Add(r Role) {
	s[r.Name] = r
}

// Update folds another set into s, replacing existing declarations.
func (s Set) Update(other Set) {
	maps.Copy(s, other)
}

// Names returns the role names in sorted order.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s))
}

// MembershipError reports a parent closure that cannot be resolved: a
// reference to an undeclared parent, or a cycle in the parent relation.
type MembershipError struct {
	Role   string
	Parent string
	Cycle  []string
}

func (e *MembershipError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("role membership cycle: %s", strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("role %s is member of unknown role %s", e.Role, e.Parent)
}

// ResolveMembership expands parent declarations into the parents' member
// lists: a role becomes a member of every ancestor reachable through the
// parent relation. Cycles are rejected, since a cyclic closure would make
// the diff order-dependent.
func (s Set) ResolveMembership() error {
	if cycle := s.findParentCycle(); cycle != nil {
		return &MembershipError{Cycle: cycle}
	}

	for _, name := range s.Names() {
		ancestors, err := s.ancestors(name)
		if err != nil {
			return err
		}
		for _, ancestor := range ancestors {
			parent := s[ancestor]
			parent.Members = uniqSorted(append(parent.Members, name))
			s[ancestor] = parent
		}
	}
	return nil
}

// ancestors walks the parent relation from name, in deterministic order.
func (s Set) ancestors(name string) ([]string, error) {
	var out []string
	seen := map[string]bool{name: true}
	frontier := slices.Clone(s[name].Parents)
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]
		if seen[parent] {
			continue
		}
		seen[parent] = true
		declared, ok := s[parent]
		if !ok {
			return nil, &MembershipError{Role: name, Parent: parent}
		}
		out = append(out, parent)
		frontier = append(frontier, declared.Parents...)
	}
	slices.Sort(out)
	return out, nil
}

// findParentCycle returns one cycle in the parent relation, or nil.
func (s Set) findParentCycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s))

	var walk func(name string, path []string) []string
	walk = func(name string, path []string) []string {
		state[name] = visiting
		path = append(path, name)
		for _, parent := range s[name].Parents {
			if _, declared := s[parent]; !declared {
				continue // reported by ancestors()
			}
			switch state[parent] {
			case visiting:
				start := slices.Index(path, parent)
				return append(slices.Clone(path[start:]), parent)
			case unvisited:
				if cycle := walk(parent, path); cycle != nil {
					return cycle
				}
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range s.Names() {
		if state[name] == unvisited {
			if cycle := walk(name, nil); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Flatten returns role names ordered so that every declared member of a
// role comes before the role itself, the order memberships can be granted
// in at creation time.
func (s Set) Flatten() []string {
	seen := make(map[string]bool, len(s))
	out := make([]string, 0, len(s))

	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		for _, member := range s[name].Members {
			if _, declared := s[member]; declared {
				visit(member)
			}
		}
		out = append(out, name)
	}

	for _, name := range s.Names() {
		visit(name)
	}
	return out
}
