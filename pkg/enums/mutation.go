package enums

import "fmt"

// EntityKind names the backend resource a queued mutation targets. Stored rows
// may carry kinds this build does not route; those are skipped, not rejected.
type EntityKind string

const (
	EntityKindCustomer EntityKind = "customer"
)

var validEntityKinds = []EntityKind{
	EntityKindCustomer,
}

// IsValid reports whether the kind is routable by this build.
func (k EntityKind) IsValid() bool {
	for _, candidate := range validEntityKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseEntityKind converts raw input into EntityKind.
func ParseEntityKind(value string) (EntityKind, error) {
	for _, candidate := range validEntityKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entity kind %q", value)
}

type MutationAction string

const (
	MutationActionCreate MutationAction = "create"
	MutationActionUpdate MutationAction = "update"
	MutationActionDelete MutationAction = "delete"
)

var validMutationActions = []MutationAction{
	MutationActionCreate,
	MutationActionUpdate,
	MutationActionDelete,
}

func (a MutationAction) IsValid() bool {
	for _, candidate := range validMutationActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseMutationAction converts raw input into MutationAction.
func ParseMutationAction(value string) (MutationAction, error) {
	for _, candidate := range validMutationActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mutation action %q", value)
}

// RequiresEntityID reports whether the action addresses an existing backend record.
func (a MutationAction) RequiresEntityID() bool {
	return a == MutationActionUpdate || a == MutationActionDelete
}
