package battleship

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SaltSize is the length of the secret salt mixed into a commitment.
const SaltSize = 32

// Commitment is SHA-256(board || salt). It binds a player to a layout
// without disclosing it.
type Commitment [sha256.Size]byte

// ComputeCommitment hashes the raw board bytes followed by the salt.
func ComputeCommitment(board Board, salt []byte) Commitment {
	h := sha256.New()
	h.Write(board)
	h.Write(salt)
	var c Commitment
	copy(c[:], h.Sum(nil))
	return c
}

// Matches reports whether board and salt open this commitment.
func (c Commitment) Matches(board Board, salt []byte) bool {
	got := ComputeCommitment(board, salt)
	return subtle.ConstantTimeCompare(c[:], got[:]) == 1
}

func (c Commitment) IsZero() bool { return c == Commitment{} }

func (c Commitment) String() string { return hex.EncodeToString(c[:]) }

func (c Commitment) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Commitment) UnmarshalText(b []byte) error {
	parsed, err := ParseCommitment(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCommitment decodes 64 hex characters (an optional 0x prefix is accepted).
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	raw, err := decodeHex(s)
	if err != nil || len(raw) != len(c) {
		return c, ErrInvalidCommitment
	}
	copy(c[:], raw)
	return c, nil
}

// ParseSalt decodes a hex salt and checks its length.
func ParseSalt(s string) ([]byte, error) {
	raw, err := decodeHex(s)
	if err != nil || len(raw) != SaltSize {
		return nil, ErrInvalidSalt
	}
	return raw, nil
}

// NewSalt draws a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
