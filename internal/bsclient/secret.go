package bsclient

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/park285/sealed-battleship/internal/battleship"
)

// FleetSecret is what a player keeps private until the final reveal.
// Losing the salt makes the board impossible to reveal, so the game can
// never reach VERIFIED. Save it somewhere durable before committing.
type FleetSecret struct {
	Rules battleship.Rules
	Board battleship.Board
	Salt  []byte
}

// NewFleetSecret places a random fleet and draws a fresh salt. rng may be nil.
func NewFleetSecret(r battleship.Rules, rng *rand.Rand) (*FleetSecret, error) {
	board, err := battleship.PlaceFleet(r, rng)
	if err != nil {
		return nil, err
	}
	salt, err := battleship.NewSalt()
	if err != nil {
		return nil, err
	}
	return &FleetSecret{Rules: r, Board: board, Salt: salt}, nil
}

// FleetSecretFromBoard wraps a hand-made layout after checking it is legal.
func FleetSecretFromBoard(r battleship.Rules, board battleship.Board) (*FleetSecret, error) {
	if err := battleship.ValidateFleet(board, r); err != nil {
		return nil, err
	}
	salt, err := battleship.NewSalt()
	if err != nil {
		return nil, err
	}
	return &FleetSecret{Rules: r, Board: append(battleship.Board(nil), board...), Salt: salt}, nil
}

func (s *FleetSecret) Commitment() battleship.Commitment {
	return battleship.ComputeCommitment(s.Board, s.Salt)
}

// Answer returns the truthful result for a shot at (x, y).
func (s *FleetSecret) Answer(x, y int) (bool, error) {
	if !s.Rules.InBounds(x, y) {
		return false, battleship.ErrInvalidCoordinate
	}
	return s.Board.Occupied(s.Rules.Index(x, y)), nil
}

type secretFile struct {
	Rules      battleship.Rules      `json:"rules"`
	Board      battleship.Board      `json:"board"`
	Salt       string                `json:"salt"`
	Commitment battleship.Commitment `json:"commitment"`
}

// Save writes the secret as JSON readable only by the owner.
func (s *FleetSecret) Save(path string) error {
	raw, err := json.MarshalIndent(secretFile{
		Rules:      s.Rules,
		Board:      s.Board,
		Salt:       hex.EncodeToString(s.Salt),
		Commitment: s.Commitment(),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// LoadFleetSecret reads a file written by Save and checks it still opens
// the commitment recorded in it.
func LoadFleetSecret(path string) (*FleetSecret, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f secretFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	salt, err := battleship.ParseSalt(f.Salt)
	if err != nil {
		return nil, err
	}
	s := &FleetSecret{Rules: f.Rules, Board: f.Board, Salt: salt}
	if !f.Commitment.IsZero() && s.Commitment() != f.Commitment {
		return nil, battleship.ErrCommitmentMismatch
	}
	return s, nil
}
