package orchestrator

import "errors"

var (
	// ErrExcludedWallet is returned when a wallet on the scoring exclusion
	// list reaches scoring. It aborts the run.
	ErrExcludedWallet = errors.New("wallet is on the scoring exclusion list")

	// ErrParticipantNotFound is returned when the repair-mode wallet is not a participant.
	ErrParticipantNotFound = errors.New("participant not found")
)
