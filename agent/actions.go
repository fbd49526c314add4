package agent

import "fmt"

// Action is one of the discrete admission decisions the agent can take.
// The enumeration is fixed: the policy network's output width, the reward
// function, and the serving payload all share it read-only.
type Action int

const (
	ActionDischarge Action = iota
	ActionWard
	ActionICU
	ActionSpecialist

	// NumActions is the policy network's output width.
	NumActions = 4
)

var actionNames = [NumActions]string{
	"Discharge",
	"Ward Admission",
	"ICU Admission",
	"Specialist Referral",
}

// Name returns the human-readable label for the action.
func (a Action) Name() string {
	if a < 0 || int(a) >= NumActions {
		return fmt.Sprintf("unknown(%d)", int(a))
	}
	return actionNames[a]
}

func (a Action) String() string { return a.Name() }

// Valid reports whether a is inside the enumerated action space.
func (a Action) Valid() bool {
	return a >= 0 && int(a) < NumActions
}

// ActionNames returns the labels in action order.
func ActionNames() []string {
	names := make([]string, NumActions)
	copy(names, actionNames[:])
	return names
}
