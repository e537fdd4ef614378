package battleship

import (
	"strings"
	"time"
)

// Every transition below checks all of its preconditions before touching the
// record, so a returned error always leaves the game exactly as it was.

// MaxGameIDLen bounds caller-chosen game ids.
const MaxGameIDLen = 64

// ValidGameID reports whether id can be used as a storage key and a URL path
// segment as is.
func ValidGameID(id string) bool {
	if id == "" || len(id) > MaxGameIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// NewGame creates the record for a match opened by caller.
func NewGame(id, caller string, commitment Commitment, rules Rules, now time.Time) (*Game, error) {
	if !ValidGameID(id) {
		return nil, ErrInvalidGameID
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, ErrInvalidCaller
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &Game{
		ID:          id,
		Rules:       rules.clone(),
		PlayerA:     caller,
		CommitmentA: commitment,
		Turn:        PlayerA,
		HitsA:       NewGrid(rules.Cells()),
		HitsB:       NewGrid(rules.Cells()),
		Shots:       []ShotRecord{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Join seats caller as player B and starts the match with A to fire.
func (g *Game) Join(caller string, commitment Commitment, now time.Time) error {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ErrInvalidCaller
	}
	if g.PlayerB != "" {
		return ErrGameFull
	}
	if caller == g.PlayerA {
		return ErrSelfJoin
	}
	g.PlayerB = caller
	g.CommitmentB = commitment
	g.Initialized = true
	g.Turn = PlayerA
	g.UpdatedAt = now
	return nil
}

// FireShot marks (x, y) on the opponent's board as pending until the
// defender answers.
func (g *Game) FireShot(caller string, x, y int, now time.Time) error {
	if !g.Initialized {
		return ErrNotInitialized
	}
	if g.GameOver {
		return ErrGameOver
	}
	shooter := g.SlotOf(caller)
	if shooter == PlayerNone {
		return ErrNotPlayer
	}
	if shooter != g.Turn {
		return ErrNotYourTurn
	}
	if g.PendingShot != nil {
		return ErrShotAlreadyPending
	}
	if !g.Rules.InBounds(x, y) {
		return ErrInvalidCoordinate
	}
	if g.HitsOn(shooter.Opponent())[g.Rules.Index(x, y)] != Unknown {
		return ErrCellAlreadyShot
	}
	g.PendingShot = &Coord{X: x, Y: y}
	g.PendingShotBy = shooter
	g.UpdatedAt = now
	return nil
}

// RevealShotResult records the defender's hit/miss answer for the pending
// shot, evaluates the win condition and passes the turn.
func (g *Game) RevealShotResult(caller string, hit bool, now time.Time) (ShotRecord, error) {
	if g.PendingShot == nil {
		return ShotRecord{}, ErrNoPendingShot
	}
	defender := g.SlotOf(caller)
	if defender == PlayerNone {
		return ShotRecord{}, ErrNotPlayer
	}
	if defender == g.PendingShotBy {
		return ShotRecord{}, ErrNotDefender
	}
	shooter := g.PendingShotBy
	at := *g.PendingShot
	idx := g.Rules.Index(at.X, at.Y)
	grid := g.HitsOn(defender)
	if grid[idx] != Unknown {
		// unreachable while FireShot guards the cell
		return ShotRecord{}, ErrCorruptRecord
	}

	if hit {
		grid[idx] = Hit
		if defender == PlayerA {
			g.HitCountA++
		} else {
			g.HitCountB++
		}
	} else {
		grid[idx] = Miss
	}
	rec := ShotRecord{Shooter: shooter, X: at.X, Y: at.Y, Hit: hit, At: now}
	g.Shots = append(g.Shots, rec)
	g.PendingShot = nil
	g.PendingShotBy = PlayerNone
	g.UpdatedAt = now

	if !g.evaluateWin(shooter) {
		g.Turn = defender
	}
	return rec, nil
}

// evaluateWin ends the game once the shooter has sunk every ship square.
// The turn stays with the winner and is never advanced again.
func (g *Game) evaluateWin(shooter Player) bool {
	if g.HitCount(shooter.Opponent()) < g.Rules.ShipSquares() {
		return false
	}
	g.GameOver = true
	g.Winner = shooter
	return true
}
