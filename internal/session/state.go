package session

// State is the per-connection session lifecycle: NoSession until a
// JoinSession/JoinSessionAck exchange completes, Joined thereafter.
// Transitions are driven only by handshake messages and transport
// lifecycle events (see Connection.process and Connection.teardown).
type State int32

const (
	NoSession State = iota
	Joining
	Joined
)

func (s State) String() string {
	switch s {
	case NoSession:
		return "NoSession"
	case Joining:
		return "Joining"
	case Joined:
		return "Joined"
	default:
		return "Unknown"
	}
}

// Role distinguishes which side of the handshake a Connection plays.
// A client-role Connection initiates JoinSession on transport connect; a
// server-role Connection waits for the peer to send it.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// processingState is the Connection State Machine's internal parser
// cursor (spec: ReadMessage | ReadCommand | ReadCommandDone | Process<Cmd>).
// It is never observable outside this package; Go's per-message dispatch
// collapses ReadCommand/Process<Cmd>/ReadCommandDone into one call to
// process(), so this type only names the cursor states: the state loop
// does not store or log a processingState value.
type processingState int

const (
	stateReadMessage processingState = iota
	stateReadCommand
	stateProcessCommand
	stateReadCommandDone
)

func (p processingState) String() string {
	switch p {
	case stateReadMessage:
		return "ReadMessage"
	case stateReadCommand:
		return "ReadCommand"
	case stateProcessCommand:
		return "ProcessCommand"
	case stateReadCommandDone:
		return "ReadCommandDone"
	default:
		return "Unknown"
	}
}
