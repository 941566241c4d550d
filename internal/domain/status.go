package domain

import "fmt"

// StatusKind is the closed set of job, group and pipeline states the engine
// understands. Provider-specific strings are mapped onto it at the fetch boundary.
type StatusKind string

const (
	StatusSuccess   StatusKind = "success"
	StatusFailed    StatusKind = "failed"
	StatusRunning   StatusKind = "running"
	StatusPending   StatusKind = "pending"
	StatusSkipped   StatusKind = "skipped"
	StatusManual    StatusKind = "manual"
	StatusScheduled StatusKind = "scheduled"
	StatusCanceled  StatusKind = "canceled"
)

// StatusKinds lists every valid kind.
var StatusKinds = []StatusKind{
	StatusSuccess, StatusFailed, StatusRunning, StatusPending,
	StatusSkipped, StatusManual, StatusScheduled, StatusCanceled,
}

// ParseStatusKind maps a GitLab status group (or status name) to a StatusKind.
// GitLab reports a handful of transitional states that render as pending.
func ParseStatusKind(s string) (StatusKind, error) {
	switch s {
	case "success", "passed", "success-with-warnings", "success_warning":
		return StatusSuccess, nil
	case "failed":
		return StatusFailed, nil
	case "running":
		return StatusRunning, nil
	case "pending", "created", "preparing", "waiting-for-resource", "waiting_for_resource",
		"waiting-for-callback", "waiting_for_callback":
		return StatusPending, nil
	case "skipped":
		return StatusSkipped, nil
	case "manual":
		return StatusManual, nil
	case "scheduled":
		return StatusScheduled, nil
	case "canceled", "cancelled", "canceling":
		return StatusCanceled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ActionKind is the single action a status may offer on its job.
type ActionKind string

const (
	ActionRetry      ActionKind = "retry"
	ActionPlay       ActionKind = "play"
	ActionCancel     ActionKind = "cancel"
	ActionUnschedule ActionKind = "unschedule"
)

// ParseActionKind maps the icon name GitLab attaches to a status action.
func ParseActionKind(icon string) (ActionKind, error) {
	switch icon {
	case "retry":
		return ActionRetry, nil
	case "play":
		return ActionPlay, nil
	case "cancel":
		return ActionCancel, nil
	case "time-out", "unschedule":
		return ActionUnschedule, nil
	}
	return "", fmt.Errorf("unknown action icon %q", icon)
}

// StatusAction is the retry/play/cancel/unschedule button attached to a status.
type StatusAction struct {
	Kind        ActionKind
	Title       string
	ButtonTitle string
	Path        string
}

// Status is the display state of a job, group, stage or pipeline.
type Status struct {
	Kind        StatusKind
	Icon        string
	Label       string
	Tooltip     string
	HasDetails  bool
	DetailsPath string
	Action      *StatusAction
}

// NewStatus builds a Status with the default icon and label for kind.
func NewStatus(kind StatusKind) Status {
	label := string(kind)
	if kind == StatusSuccess {
		label = "passed"
	}
	return Status{
		Kind:    kind,
		Icon:    "status_" + string(kind),
		Label:   label,
		Tooltip: label,
	}
}
