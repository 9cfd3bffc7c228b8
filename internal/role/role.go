package role

import (
	"fmt"
	"slices"
)

// Role declares a wanted PostgreSQL role: the roles it must contain
// (members), the roles it must belong to (parents), its options and an
// optional comment. Names are lowercased by rule evaluation.
type Role struct {
	Name    string
	Members []string
	Parents []string
	Options Options
	Comment string
}

// ConflictError reports two declarations of one role that disagree on
// options. Merge order does not matter: incompatible sets always conflict.
type ConflictError struct {
	Role string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("role %s redefined with different options", e.Role)
}

// Merge folds another declaration of the same role into r. Member and
// parent sets union; options must be structurally equal; the comment is
// inherited from whichever side declares one. Commutative and idempotent.
func (r *Role) Merge(other Role) error {
	if !r.Options.Equal(other.Options) {
		return &ConflictError{Role: r.Name}
	}
	r.Members = uniqSorted(append(r.Members, other.Members...))
	r.Parents = uniqSorted(append(r.Parents, other.Parents...))
	if r.Comment == "" {
		r.Comment = other.Comment
	}
	return nil
}

// Equivalent reports whether the actual role already satisfies the wanted
// declaration. Parents are not compared: membership closure resolves them
// into the parents' member lists before diffing.
func (r Role) Equivalent(other Role) bool {
	return slices.Equal(r.Members, other.Members) &&
		r.Options.Equal(other.Options) &&
		r.Comment == other.Comment
}

func uniqSorted(names []string) []string {
	slices.Sort(names)
	return slices.Compact(names)
}
