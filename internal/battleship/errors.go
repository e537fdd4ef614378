package battleship

import "errors"

// Kind classifies a protocol violation.
type Kind string

const (
	KindState         Kind = "state_violation"
	KindAuthorization Kind = "authorization_violation"
	KindInput         Kind = "input_violation"
	KindIntegrity     Kind = "integrity_violation"
	KindCapacity      Kind = "capacity_violation"
)

// Error is a rejected operation. The record it was aimed at is left untouched.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Retryable reports whether resubmitting later can succeed. Integrity
// violations are evidence of bad faith and never are.
func (e *Error) Retryable() bool {
	return e.Kind == KindState || e.Kind == KindAuthorization
}

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrAlreadyExists = newError("AlreadyExists", KindCapacity, "game already exists")
	ErrGameFull      = newError("GameFull", KindCapacity, "game already has two players")

	ErrGameNotFound       = newError("GameNotFound", KindState, "game not found")
	ErrNotInitialized     = newError("NotInitialized", KindState, "waiting for second player")
	ErrGameOver           = newError("GameOver", KindState, "game is over")
	ErrShotAlreadyPending = newError("ShotAlreadyPending", KindState, "a shot is already awaiting its result")
	ErrNoPendingShot      = newError("NoPendingShot", KindState, "no shot is awaiting a result")
	ErrCellAlreadyShot    = newError("CellAlreadyShot", KindState, "cell was already fired upon")
	ErrGameNotOver        = newError("GameNotOver", KindState, "boards can only be revealed after the game is over")
	ErrAlreadyRevealed    = newError("AlreadyRevealed", KindState, "board already revealed")
	ErrConcurrentUpdate   = newError("ConcurrentUpdate", KindState, "game was updated concurrently, resubmit")
	ErrCorruptRecord      = newError("CorruptRecord", KindState, "stored game record violates protocol invariants")

	ErrSelfJoin      = newError("SelfJoin", KindAuthorization, "creator cannot join own game")
	ErrNotPlayer     = newError("NotPlayer", KindAuthorization, "caller is not a player in this game")
	ErrNotYourTurn   = newError("NotYourTurn", KindAuthorization, "not your turn")
	ErrNotDefender   = newError("NotDefender", KindAuthorization, "only the defender may reveal a shot result")
	ErrWrongRevealer = newError("WrongRevealer", KindAuthorization, "caller does not own this board slot")

	ErrInvalidCoordinate = newError("InvalidCoordinate", KindInput, "coordinate outside the board")
	ErrInvalidBoard      = newError("InvalidBoard", KindInput, "board has wrong length or cell values")
	ErrInvalidSalt       = newError("InvalidSalt", KindInput, "salt must be 32 bytes")
	ErrInvalidCommitment = newError("InvalidCommitment", KindInput, "commitment must be 32 bytes")
	ErrInvalidCaller     = newError("InvalidCaller", KindInput, "caller identity is empty")
	ErrInvalidRules      = newError("InvalidRules", KindInput, "board size or fleet is not playable")
	ErrInvalidGameID     = newError("InvalidGameID", KindInput, "game id must be 1-64 letters, digits, '-' or '_'")
	ErrMissingField      = newError("MissingField", KindInput, "request is missing a required field")

	ErrCommitmentMismatch        = newError("CommitmentMismatch", KindIntegrity, "board and salt do not match the commitment")
	ErrInconsistentReveal        = newError("InconsistentReveal", KindIntegrity, "revealed board contradicts reported shot results")
	ErrInvalidFleetConfiguration = newError("InvalidFleetConfiguration", KindIntegrity, "revealed board is not a legal fleet")
)

var allErrors = []*Error{
	ErrAlreadyExists, ErrGameFull,
	ErrGameNotFound, ErrNotInitialized, ErrGameOver, ErrShotAlreadyPending, ErrNoPendingShot,
	ErrCellAlreadyShot, ErrGameNotOver, ErrAlreadyRevealed, ErrConcurrentUpdate, ErrCorruptRecord,
	ErrSelfJoin, ErrNotPlayer, ErrNotYourTurn, ErrNotDefender, ErrWrongRevealer,
	ErrInvalidCoordinate, ErrInvalidBoard, ErrInvalidSalt, ErrInvalidCommitment, ErrInvalidCaller, ErrInvalidRules,
	ErrInvalidGameID, ErrMissingField,
	ErrCommitmentMismatch, ErrInconsistentReveal, ErrInvalidFleetConfiguration,
}

// AsError unwraps err to a protocol error, if it is one.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the violation kind of err, or "" for non-protocol errors.
func KindOf(err error) Kind {
	if pe, ok := AsError(err); ok {
		return pe.Kind
	}
	return ""
}

// ErrorByCode maps a wire code back to its sentinel.
func ErrorByCode(code string) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}
