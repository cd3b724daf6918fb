package models

import (
	"errors"
	"fmt"
	"time"
)

// Cycle and cycle task states.
const (
	StatusAssigned   = "Assigned"
	StatusInProgress = "InProgress"
	StatusFinished   = "Finished"
	StatusVerified   = "Verified"
	StatusDeclined   = "Declined"
)

var (
	noVerificationStates = []string{StatusAssigned, StatusInProgress, StatusFinished}
	allCycleStates       = []string{StatusAssigned, StatusInProgress, StatusFinished, StatusVerified}
	allCycleTaskStates   = []string{StatusAssigned, StatusInProgress, StatusFinished, StatusVerified, StatusDeclined}
)

// ErrInvalidStatus is returned for a status outside a record's valid states.
var ErrInvalidStatus = errors.New("invalid status")

// Stateful records move through an enumerated set of states.
type Stateful interface {
	GetStatus() string
	SetStatus(status string)
	ValidStatuses() []string
	DoneStatus() string
}

// CycleStates returns the states a cycle may take.
// Verified is only valid when the cycle needs verification.
func CycleStates(needsVerification bool) []string {
	if needsVerification {
		return append([]string(nil), allCycleStates...)
	}
	return append([]string(nil), noVerificationStates...)
}

// CycleTaskStates returns the states a cycle task may take.
func CycleTaskStates(needsVerification bool) []string {
	states := CycleStates(needsVerification)
	return append(states, StatusDeclined)
}

// AllStatuses lists every state known to cycle tasks, for documentation.
func AllStatuses() []string {
	return append([]string(nil), allCycleTaskStates...)
}

// doneStatus is the terminal state: Verified when verification is needed.
func doneStatus(needsVerification bool) string {
	if needsVerification {
		return StatusVerified
	}
	return StatusFinished
}

// IsDone reports whether s has reached its terminal state.
func IsDone(s Stateful) bool {
	return s.GetStatus() == s.DoneStatus()
}

// ActiveStates returns the valid states other than the terminal one.
func ActiveStates(s Stateful) []string {
	var out []string
	for _, st := range s.ValidStatuses() {
		if st != s.DoneStatus() {
			out = append(out, st)
		}
	}
	return out
}

// ChangeStatus validates status against s's valid states before setting it.
func ChangeStatus(s Stateful, status string) error {
	for _, st := range s.ValidStatuses() {
		if st == status {
			s.SetStatus(status)
			return nil
		}
	}
	return fmt.Errorf("%w %q (valid: %v)", ErrInvalidStatus, status, s.ValidStatuses())
}

// dateOnly truncates t to midnight UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
