package signaling

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseNegotiating
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseNegotiating:
		return "negotiating"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

type Role int

const (
	RoleNone Role = iota
	RoleOfferer
	RoleAnswerer
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleAnswerer:
		return "answerer"
	default:
		return "none"
	}
}

// NegotiationState is owned by the coordinator loop. Callers only ever see
// copies.
type NegotiationState struct {
	Phase Phase
	Role  Role

	LocalSet  bool
	RemoteSet bool
	// LocalPending is set while a CreateOffer/CreateAnswer has been issued
	// and its local description has not come back yet.
	LocalPending bool
	// PendingCandidates counts remote candidates held until a remote
	// description is applied.
	PendingCandidates int
}
