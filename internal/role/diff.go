package role

import "log/slog"

// ActionKind is the corrective role operation decided by a diff.
type ActionKind int

const (
	CreateRole ActionKind = iota
	AlterRole
	DropRole
)

func (k ActionKind) String() string {
	switch k {
	case CreateRole:
		return "create"
	case AlterRole:
		return "alter"
	case DropRole:
		return "drop"
	}
	return "unknown"
}

// Action is one corrective role operation. Current carries the actual
// payload for alters and drops, Wanted the desired payload for creates and
// alters.
type Action struct {
	Kind    ActionKind
	Current Role
	Wanted  Role
}

// Diff compares wanted declarations against the actual cluster. all is the
// full role catalog, managed the subset this run owns. Creates and alters
// come first, members ordered before the roles containing them, then drops
// of spurious managed roles. Managed roles already absent from the catalog
// are skipped, as is public.
func Diff(all, managed, wanted Set) []Action {
	var actions []Action

	for _, name := range wanted.Flatten() {
		wantedRole := wanted[name]
		existing, ok := all[name]
		if !ok {
			actions = append(actions, Action{Kind: CreateRole, Wanted: wantedRole})
			continue
		}
		if _, ok := managed[name]; !ok {
			slog.Warn("Reusing unmanaged role. Ensure the managed role policy covers all wanted roles.", "role", name)
		}
		if !existing.Equivalent(wantedRole) {
			actions = append(actions, Action{Kind: AlterRole, Current: existing, Wanted: wantedRole})
		}
	}

	for _, name := range managed.Names() {
		if _, ok := wanted[name]; ok {
			continue
		}
		if name == "public" {
			continue
		}
		existing, ok := all[name]
		if !ok {
			// Already absent, e.g. a statically managed role never created.
			continue
		}
		actions = append(actions, Action{Kind: DropRole, Current: existing})
	}

	return actions
}
