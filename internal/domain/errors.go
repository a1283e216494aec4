package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyActive          = errors.New("an active season already exists")
	ErrNoActiveSeason         = errors.New("no active season")
	ErrInvalidPhaseTransition = errors.New("invalid phase transition")
	ErrConcurrentPhaseChange  = errors.New("season phase changed concurrently")
	ErrAlreadySignedUp        = errors.New("already signed up for this season")
	ErrNoPendingCandidate     = errors.New("no pending candidate")
	ErrAlreadyPlayed          = errors.New("already played this round")
	ErrWrongPhase             = errors.New("operation not allowed in current phase")
	ErrNotRegistered          = errors.New("player is not on the season roster")
	ErrSeasonFull             = errors.New("season roster is full")
	ErrNoOpenRound            = errors.New("no open round")
	ErrInvalidArgument        = errors.New("invalid argument")
)

// Operation names a phase-guarded action. It keys the phase message table.
type Operation string

const (
	OpStartSignup Operation = "start_signup"
	OpStopSignup  Operation = "stop_signup"
	OpStartGaming Operation = "start_gaming"
	OpStopGaming  Operation = "stop_gaming"
	OpStartRound  Operation = "start_round"
	OpStopRound   Operation = "stop_round"
	OpSignUp      Operation = "signup"
	OpApprove     Operation = "approve"
	OpRefuse      Operation = "refuse"
	OpPlay        Operation = "play"
)

// PhaseError reports an operation rejected because of the season's current status.
// Kind is ErrInvalidPhaseTransition for phase operations and ErrWrongPhase otherwise.
type PhaseError struct {
	Op      Operation
	Current SeasonStatus
	Kind    error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v (current status %s)", e.Op, e.Kind, e.Current)
}

func (e *PhaseError) Unwrap() error { return e.Kind }

func InvalidTransition(op Operation, current SeasonStatus) error {
	return &PhaseError{Op: op, Current: current, Kind: ErrInvalidPhaseTransition}
}

func WrongPhase(op Operation, current SeasonStatus) error {
	return &PhaseError{Op: op, Current: current, Kind: ErrWrongPhase}
}

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() error { return e.Err }

// WrapStore tags err as a persistence failure unless it already is one.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err came from the persistence layer.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
