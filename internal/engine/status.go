package engine

// Status is the controller's externally visible state. Retryable failures
// never surface as Failed; callers only see Connecting/Reconciling while the
// engine works through them.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusStreaming
	StatusReconciling
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusReconciling:
		return "reconciling"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further connection attempts will be made.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
