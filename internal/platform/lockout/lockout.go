package lockout

import (
	"time"

	"mioym/internal/database"
)

// Classification is the outcome of evaluating one login attempt.
type Classification string

const (
	Unlock            Classification = "unlock"
	TemporaryLock     Classification = "temporary"
	PermanentLock     Classification = "permanent"
	IncorrectPassword Classification = "incorrect_password"
)

// Policy decides lock transitions. It holds no state of its own; the thresholds
// are fixed at construction.
type Policy struct {
	TemporaryAttempts int
	PermanentAttempts int
	TemporaryDuration time.Duration
}

func NewPolicy(temporaryAttempts, permanentAttempts int, temporaryDuration time.Duration) Policy {
	return Policy{
		TemporaryAttempts: temporaryAttempts,
		PermanentAttempts: permanentAttempts,
		TemporaryDuration: temporaryDuration,
	}
}

// Fresh is the state of a newly registered or freshly reset account.
func (p Policy) Fresh() database.LockState {
	return database.LockState{
		AttemptsUntilTemporaryLock: p.TemporaryAttempts,
		AttemptsUntilPermanentLock: p.PermanentAttempts,
	}
}

// Evaluate applies one attempt to state and returns the state to persist.
//
// A permanent lock short-circuits everything. A temporary lock holds until
// TemporaryLockedUntil has strictly passed; after that the temporary flag and
// counter are cleared and the attempt is evaluated as if the account had been
// open. A match resets everything. A mismatch spends one attempt from both
// counters, and exhausting the permanent counter locks permanently even when
// the temporary counter runs out on the same attempt.
func (p Policy) Evaluate(state database.LockState, matched bool, now time.Time) (database.LockState, Classification) {
	if state.IsPermanentlyLocked {
		return state, PermanentLock
	}

	if state.IsTemporaryLocked {
		if !now.After(state.TemporaryLockedUntil) {
			return state, TemporaryLock
		}
		state.IsTemporaryLocked = false
		state.TemporaryLockedUntil = time.Time{}
		state.AttemptsUntilTemporaryLock = p.TemporaryAttempts
	}

	if matched {
		return p.Fresh(), Unlock
	}

	state.AttemptsUntilTemporaryLock--
	state.AttemptsUntilPermanentLock--

	if state.AttemptsUntilTemporaryLock <= 0 {
		state.IsTemporaryLocked = true
		state.TemporaryLockedUntil = now.Add(p.TemporaryDuration)
	}
	if state.AttemptsUntilPermanentLock <= 0 {
		state.IsPermanentlyLocked = true
		return state, PermanentLock
	}
	if state.IsTemporaryLocked {
		return state, TemporaryLock
	}
	return state, IncorrectPassword
}
