// internal/domain/notification/shared_types.go
package notification

// Action tells the queue what to do with a row after it was evaluated under lock.
type Action int

const (
	ActionKeep   Action = iota // leave the row untouched
	ActionUpdate               // persist NextSendAt and TimesSent
	ActionDelete               // remove the row (expired or repeat cap reached)
)

func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}
