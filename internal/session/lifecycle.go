package session

import "fmt"

// transitions is the closed set of legal status moves. recording⇄paused is the
// only reversible pair; everything downstream of stopped is one-directional.
var transitions = map[Status][]Status{
	StatusRecording:  {StatusPaused, StatusStopped},
	StatusPaused:     {StatusRecording, StatusStopped},
	StatusStopped:    {StatusProcessing},
	StatusProcessing: {StatusCompleted},
	StatusCompleted:  {},
}

// CanTransition reports whether from -> to is a legal move. Re-applying the
// current status is never legal: a duplicate transition request must be
// rejected, not silently re-entered.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidState (wrapped with both statuses)
// when from -> to is not legal.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, to)
	}
	return nil
}

// AllowedFrom lists the statuses a conditional store update may transition
// from when moving to target. This is what makes the legality check and the
// status write a single atomic statement.
func AllowedFrom(target Status) []Status {
	var from []Status
	for s, nexts := range transitions {
		for _, next := range nexts {
			if next == target {
				from = append(from, s)
			}
		}
	}
	return from
}

// CanUpload reports whether a chunk upload is legal for the session status.
// Uploads may still land while paused (retries of chunks cut before the
// pause), but nothing is accepted once the session has stopped.
func CanUpload(s Status) bool {
	return s == StatusRecording || s == StatusPaused
}

// ValidateUpload returns ErrInvalidState when uploads are not accepted.
func ValidateUpload(s Status) error {
	if !CanUpload(s) {
		return fmt.Errorf("%w: chunk upload while %s", ErrInvalidState, s)
	}
	return nil
}

// Terminal reports whether no further transitions exist for the status.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}
