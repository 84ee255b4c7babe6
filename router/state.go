package router

// State of a Forwarder.
//
//	Idle -> Starting -> Running -> Stopping -> Idle
//	Starting -> Idle (open failed)
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
