package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// ErrorKind groups settlement errors by what the caller did wrong.
type ErrorKind string

const (
	KindAuthorization   ErrorKind = "authorization"
	KindLifecycle       ErrorKind = "lifecycle"
	KindStateConflict   ErrorKind = "state_conflict"
	KindInputValidation ErrorKind = "input_validation"
	KindProofValidation ErrorKind = "proof_validation"
	KindFunds           ErrorKind = "funds"
)

// Error is a settlement error with a stable code. Sentinels below are
// compared with errors.Is; handlers wrap them with context.
type Error struct {
	Code    string    `json:"code"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrNotAdmin       = newError(KindAuthorization, "NotAdmin", "not authorized admin")
	ErrNotBetOwner    = newError(KindAuthorization, "NotBetOwner", "not the owner of this bet")
	ErrNotParticipant = newError(KindAuthorization, "NotParticipant", "not a participant in this battle")

	ErrBattleNotActive = newError(KindLifecycle, "BattleNotActive", "battle is not active")
	ErrBattleFull      = newError(KindLifecycle, "BattleFull", "battle is full")
	ErrBattleEnded     = newError(KindLifecycle, "BattleEnded", "battle has ended")
	ErrBattleNotEnded  = newError(KindLifecycle, "BattleNotEnded", "battle has not ended yet")
	ErrBattleNotFull   = newError(KindLifecycle, "BattleNotFull", "battle is not full yet")

	ErrAlreadyJoined  = newError(KindStateConflict, "AlreadyJoined", "already joined this battle")
	ErrAlreadyClaimed = newError(KindStateConflict, "AlreadyClaimed", "winnings already claimed")
	ErrAlreadyExists  = newError(KindStateConflict, "AlreadyExists", "account already exists")

	ErrInvalidDuration        = newError(KindInputValidation, "InvalidDuration", "invalid battle duration")
	ErrInvalidPredictedWinner = newError(KindInputValidation, "InvalidPredictedWinner", "invalid predicted winner")
	ErrBettingOnlyFor1v1      = newError(KindInputValidation, "BettingOnlyFor1v1", "betting is only allowed for 1v1 battles")
	ErrParticipantCannotBet   = newError(KindInputValidation, "ParticipantCannotBet", "battle participants cannot bet")
	ErrInvalidAmount          = newError(KindInputValidation, "InvalidAmount", "amount must be greater than zero")
	ErrAmountOverflow         = newError(KindInputValidation, "AmountOverflow", "amount overflows pool total")
	ErrInvalidBattleType      = newError(KindInputValidation, "InvalidBattleType", "unknown battle type")

	ErrInvalidMerkleProof = newError(KindProofValidation, "InvalidMerkleProof", "invalid merkle proof")
	ErrLeafMismatch       = newError(KindProofValidation, "LeafMismatch", "leaf does not match claim")

	ErrInsufficientFunds = newError(KindFunds, "InsufficientFunds", "insufficient balance")
	ErrUnauthorized      = newError(KindFunds, "Unauthorized", "authority does not match account signer")
	ErrVaultImbalance    = newError(KindFunds, "VaultImbalance", "vault balance does not match its ledger")
)

// AsError extracts the settlement error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
