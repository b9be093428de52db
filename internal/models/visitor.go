package models

import "errors"

var (
	ErrAlreadyInside = errors.New("visitor is already inside")
	ErrNotEntered    = errors.New("visitor has not entered yet")
	ErrAlreadyExited = errors.New("visitor has already exited")
)

// ScanResult describes the state change a gate scan produces.
type ScanResult struct {
	NewStatus     string
	Message       string
	ClearExitTime bool
}

// ApplyScan resolves the entry/exit state machine for the visitor's current
// status. Re-entry after an exit is allowed and clears the recorded exit time.
func (v *Visitor) ApplyScan(action string) (ScanResult, error) {
	switch action {
	case ActionEntry:
		switch v.Status {
		case VisitorStatusRegistered:
			return ScanResult{NewStatus: VisitorStatusEntered, Message: "Welcome! Visitor has entered successfully."}, nil
		case VisitorStatusEntered:
			return ScanResult{}, ErrAlreadyInside
		case VisitorStatusExited:
			return ScanResult{NewStatus: VisitorStatusEntered, Message: "Welcome back! Visitor has re-entered.", ClearExitTime: true}, nil
		}
	case ActionExit:
		switch v.Status {
		case VisitorStatusEntered:
			return ScanResult{NewStatus: VisitorStatusExited, Message: "Goodbye! Visitor has exited successfully."}, nil
		case VisitorStatusRegistered:
			return ScanResult{}, ErrNotEntered
		case VisitorStatusExited:
			return ScanResult{}, ErrAlreadyExited
		}
	}
	return ScanResult{}, errors.New("unknown scan action: " + action)
}

// Name reads the display name recorded in visitor metadata at registration.
func (v *Visitor) Name() string {
	if name, ok := v.Metadata["visitor_name"].(string); ok && name != "" {
		return name
	}
	return "Unknown Visitor"
}
