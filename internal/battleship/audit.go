package battleship

import (
	"fmt"
	"strings"
	"time"
)

// RevealBoardPlayerA opens player A's commitment after the game is over.
func (g *Game) RevealBoardPlayerA(caller string, board Board, salt []byte, now time.Time) error {
	return g.RevealBoard(PlayerA, caller, board, salt, now)
}

// RevealBoardPlayerB opens player B's commitment after the game is over.
func (g *Game) RevealBoardPlayerB(caller string, board Board, salt []byte, now time.Time) error {
	return g.RevealBoard(PlayerB, caller, board, salt, now)
}

// RevealBoard verifies the board and salt of slot against its commitment,
// against every shot answer the player gave during play, and against the
// fleet shape. Only a board passing all three is recorded.
func (g *Game) RevealBoard(slot Player, caller string, board Board, salt []byte, now time.Time) error {
	if slot != PlayerA && slot != PlayerB {
		return ErrWrongRevealer
	}
	if !g.GameOver {
		return ErrGameNotOver
	}
	if strings.TrimSpace(caller) == "" || g.PlayerID(slot) != caller {
		return ErrWrongRevealer
	}
	if g.revealed(slot) {
		return ErrAlreadyRevealed
	}
	if err := board.validate(g.Rules); err != nil {
		return err
	}
	if len(salt) != SaltSize {
		return ErrInvalidSalt
	}
	if !g.commitmentOf(slot).Matches(board, salt) {
		return ErrCommitmentMismatch
	}
	if err := crossCheck(board, g.HitsOn(slot)); err != nil {
		return err
	}
	if err := ValidateFleet(board, g.Rules); err != nil {
		return err
	}

	stored := append(Board(nil), board...)
	if slot == PlayerA {
		g.RevealedA = true
		g.BoardA = stored
	} else {
		g.RevealedB = true
		g.BoardB = stored
	}
	g.UpdatedAt = now
	return nil
}

// crossCheck compares a revealed board with the answers recorded for it.
func crossCheck(board Board, hits Grid) error {
	if len(board) != len(hits) {
		return ErrInconsistentReveal
	}
	for i, s := range hits {
		switch s {
		case Hit:
			if board[i] != CellShip {
				return ErrInconsistentReveal
			}
		case Miss:
			if board[i] != CellEmpty {
				return ErrInconsistentReveal
			}
		}
	}
	return nil
}

// AuditRecord summarizes a finished game for parties that act on its result.
type AuditRecord struct {
	GameID    string `json:"game_id"`
	Phase     Phase  `json:"phase"`
	Verified  bool   `json:"verified"`
	Winner    Player `json:"winner"`
	WinnerID  string `json:"winner_id"`
	PlayerA   string `json:"player_a"`
	PlayerB   string `json:"player_b"`
	HitCountA int    `json:"hit_count_a"`
	HitCountB int    `json:"hit_count_b"`
	ShotCount int    `json:"shot_count"`
	RevealedA bool   `json:"revealed_a"`
	RevealedB bool   `json:"revealed_b"`
	BoardA    Board  `json:"board_a,omitempty"`
	BoardB    Board  `json:"board_b,omitempty"`
}

// Audit returns the audit record. It is only meaningful once the game is over;
// the winner should be trusted only when Verified is set.
func (g *Game) Audit() AuditRecord {
	return AuditRecord{
		GameID:    g.ID,
		Phase:     g.Phase(),
		Verified:  g.Verified(),
		Winner:    g.Winner,
		WinnerID:  g.WinnerID(),
		PlayerA:   g.PlayerA,
		PlayerB:   g.PlayerB,
		HitCountA: g.HitCountA,
		HitCountB: g.HitCountB,
		ShotCount: len(g.Shots),
		RevealedA: g.RevealedA,
		RevealedB: g.RevealedB,
		BoardA:    append(Board(nil), g.BoardA...),
		BoardB:    append(Board(nil), g.BoardB...),
	}
}

// CheckInvariants validates a record as a whole. Hosts run it before
// committing a transition and after loading a stored record.
func (g *Game) CheckInvariants() error {
	cells := g.Rules.Cells()
	if err := g.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if len(g.HitsA) != cells || len(g.HitsB) != cells {
		return fmt.Errorf("grid size mismatch")
	}
	if g.PlayerA == "" {
		return fmt.Errorf("missing player A")
	}
	if g.Initialized != (g.PlayerB != "") {
		return fmt.Errorf("initialized flag disagrees with player B")
	}
	if g.Turn != PlayerA && g.Turn != PlayerB {
		return fmt.Errorf("bad turn %d", g.Turn)
	}
	total := g.Rules.ShipSquares()
	if g.HitCountA != g.HitsA.Count(Hit) || g.HitCountB != g.HitsB.Count(Hit) {
		return fmt.Errorf("hit counts disagree with grids")
	}
	if g.HitCountA > total || g.HitCountB > total {
		return fmt.Errorf("hit count above fleet size")
	}
	if len(g.Shots) != g.HitsA.Count(Hit)+g.HitsA.Count(Miss)+g.HitsB.Count(Hit)+g.HitsB.Count(Miss) {
		return fmt.Errorf("shot log disagrees with grids")
	}
	if g.PendingShot != nil {
		if g.GameOver || !g.Initialized {
			return fmt.Errorf("pending shot outside active play")
		}
		if g.PendingShotBy != g.Turn {
			return fmt.Errorf("pending shot not fired by turn player")
		}
		if !g.Rules.InBounds(g.PendingShot.X, g.PendingShot.Y) {
			return fmt.Errorf("pending shot out of bounds")
		}
	} else if g.PendingShotBy != PlayerNone {
		return fmt.Errorf("pending shooter without pending shot")
	}
	sunkA, sunkB := g.HitCountA == total, g.HitCountB == total
	if g.GameOver {
		if g.Winner == PlayerNone || g.HitCount(g.Winner.Opponent()) != total {
			return fmt.Errorf("game over without a sunk fleet")
		}
		if g.Turn != g.Winner {
			return fmt.Errorf("turn moved after game over")
		}
	} else {
		if sunkA || sunkB {
			return fmt.Errorf("sunk fleet but game not over")
		}
		if g.Winner != PlayerNone || g.RevealedA || g.RevealedB {
			return fmt.Errorf("result fields set during play")
		}
	}
	return nil
}
