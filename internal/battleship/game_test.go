package battleship

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fleetCellsA = []int{0, 1, 2, 3, 4, 10, 11, 12, 13, 20, 21, 22, 30, 31, 32, 40, 41}
	fleetCellsB = []int{5, 6, 7, 8, 9, 15, 16, 17, 18, 25, 26, 27, 35, 36, 37, 45, 46}
	// empty on board A, used for B's misses
	emptyCellsA = []int{50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63, 64, 65, 66}
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type seat struct {
	id    string
	board Board
	salt  []byte
}

func newSeat(id string, fill byte, cells []int) seat {
	return seat{
		id:    id,
		board: BoardFromCells(100, cells...),
		salt:  bytes.Repeat([]byte{fill}, SaltSize),
	}
}

func (s seat) commitment() Commitment { return ComputeCommitment(s.board, s.salt) }

func startedGame(t *testing.T, a, b seat) *Game {
	t.Helper()
	g, err := NewGame("g1", a.id, a.commitment(), StandardRules(), t0)
	require.NoError(t, err)
	require.NoError(t, g.Join(b.id, b.commitment(), t0))
	return g
}

func cell(c int) (int, int) { return c % 10, c / 10 }

// exchange fires one shot from shooter and lets the defender answer.
func exchange(t *testing.T, g *Game, shooter, defender string, target int, hit bool) ShotRecord {
	t.Helper()
	x, y := cell(target)
	require.NoError(t, g.FireShot(shooter, x, y, t0))
	rec, err := g.RevealShotResult(defender, hit, t0)
	require.NoError(t, err)
	require.NoError(t, g.CheckInvariants())
	return rec
}

// playAWins lets A sink every cell in bTargets while B shoots at aTargets.
// B confirms every hit; A answers with answerA.
func playAWins(t *testing.T, g *Game, a, b seat, bTargets, aTargets []int, answerA func(int) bool) {
	t.Helper()
	for i, target := range bTargets {
		exchange(t, g, a.id, b.id, target, true)
		if i == len(bTargets)-1 {
			break
		}
		tgt := aTargets[i]
		exchange(t, g, b.id, a.id, tgt, answerA(tgt))
	}
}

func TestEndToEndScenario(t *testing.T) {
	a := newSeat("alice", 0xA1, fleetCellsA)
	b := newSeat("bob", 0xB2, fleetCellsB)

	g, err := NewGame("g1", a.id, a.commitment(), StandardRules(), t0)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaiting, g.Phase())
	assert.Equal(t, PlayerA, g.Turn)

	require.NoError(t, g.Join(b.id, b.commitment(), t0))
	assert.True(t, g.Initialized)
	assert.Equal(t, PlayerA, g.Turn)
	assert.Equal(t, PhaseActive, g.Phase())

	require.NoError(t, g.FireShot(a.id, 5, 0, t0))
	assert.Equal(t, PhaseAwaitingReveal, g.Phase())
	_, err = g.RevealShotResult(b.id, true, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, g.HitCountB)
	assert.Equal(t, PlayerB, g.Turn)

	exchange(t, g, b.id, a.id, emptyCellsA[0], false)
	for i, target := range fleetCellsB[1:] {
		exchange(t, g, a.id, b.id, target, true)
		if i < len(fleetCellsB)-2 {
			assert.False(t, g.GameOver)
			exchange(t, g, b.id, a.id, emptyCellsA[i+1], false)
		}
	}

	assert.Equal(t, 17, g.HitCountB)
	assert.True(t, g.GameOver)
	assert.Equal(t, PlayerA, g.Winner)
	assert.Equal(t, "alice", g.WinnerID())
	assert.Equal(t, PhaseGameOver, g.Phase())

	require.NoError(t, g.RevealBoardPlayerA(a.id, a.board, a.salt, t0))
	require.NoError(t, g.RevealBoardPlayerB(b.id, b.board, b.salt, t0))
	assert.True(t, g.RevealedA)
	assert.True(t, g.RevealedB)
	assert.Equal(t, PhaseVerified, g.Phase())

	audit := g.Audit()
	assert.True(t, audit.Verified)
	assert.Equal(t, "alice", audit.WinnerID)
	assert.Equal(t, 33, audit.ShotCount)
	assert.Equal(t, a.board, audit.BoardA)
	require.NoError(t, g.CheckInvariants())
}

func TestInitializeAndJoinGuards(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)

	_, err := NewGame("g1", "  ", a.commitment(), StandardRules(), t0)
	assert.ErrorIs(t, err, ErrInvalidCaller)

	_, err = NewGame("g1", a.id, a.commitment(), Rules{BoardSize: 3, Fleet: []int{5}}, t0)
	assert.ErrorIs(t, err, ErrInvalidRules)

	for _, id := range []string{"", "x/y", "a b", "é", "g1?", string(make([]byte, MaxGameIDLen+1))} {
		_, err = NewGame(id, a.id, a.commitment(), StandardRules(), t0)
		assert.ErrorIs(t, err, ErrInvalidGameID, "id %q", id)
	}
	assert.True(t, ValidGameID("3f2a9c1e-0b7d-4e55-9a61-2c8f0d4b7e10"))
	assert.True(t, ValidGameID("Round_2"))

	g, err := NewGame("g1", a.id, a.commitment(), StandardRules(), t0)
	require.NoError(t, err)

	assert.ErrorIs(t, g.Join(a.id, b.commitment(), t0), ErrSelfJoin)
	assert.False(t, g.Initialized)

	require.NoError(t, g.Join(b.id, b.commitment(), t0))
	err = g.Join("carol", b.commitment(), t0)
	assert.ErrorIs(t, err, ErrGameFull)
	assert.Equal(t, KindCapacity, KindOf(err))
	assert.Equal(t, "bob", g.PlayerB)
	assert.Equal(t, b.commitment(), g.CommitmentB)
}

func TestFireShotGuards(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)

	g, err := NewGame("g1", a.id, a.commitment(), StandardRules(), t0)
	require.NoError(t, err)
	assert.ErrorIs(t, g.FireShot(a.id, 0, 0, t0), ErrNotInitialized)

	require.NoError(t, g.Join(b.id, b.commitment(), t0))
	assert.ErrorIs(t, g.FireShot("mallory", 0, 0, t0), ErrNotPlayer)
	assert.ErrorIs(t, g.FireShot(b.id, 0, 0, t0), ErrNotYourTurn)
	assert.ErrorIs(t, g.FireShot(a.id, 10, 0, t0), ErrInvalidCoordinate)
	assert.ErrorIs(t, g.FireShot(a.id, 0, -1, t0), ErrInvalidCoordinate)

	before := g.Clone()
	require.NoError(t, g.FireShot(a.id, 3, 4, t0))
	assert.ErrorIs(t, g.FireShot(a.id, 4, 4, t0), ErrShotAlreadyPending)
	assert.ErrorIs(t, g.FireShot(b.id, 4, 4, t0), ErrNotYourTurn)
	assert.Equal(t, &Coord{X: 3, Y: 4}, g.PendingShot)
	assert.Nil(t, before.PendingShot)
}

func TestIdempotentTargeting(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)

	exchange(t, g, a.id, b.id, 55, false)
	exchange(t, g, b.id, a.id, 55, false)

	x, y := cell(55)
	err := g.FireShot(a.id, x, y, t0)
	assert.ErrorIs(t, err, ErrCellAlreadyShot)
	assert.Nil(t, g.PendingShot)
	assert.Equal(t, PlayerA, g.Turn)
}

func TestRevealShotResultGuards(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)

	_, err := g.RevealShotResult(b.id, true, t0)
	assert.ErrorIs(t, err, ErrNoPendingShot)

	require.NoError(t, g.FireShot(a.id, 5, 0, t0))
	_, err = g.RevealShotResult(a.id, true, t0)
	assert.ErrorIs(t, err, ErrNotDefender)
	assert.Equal(t, KindAuthorization, KindOf(err))
	_, err = g.RevealShotResult("mallory", true, t0)
	assert.ErrorIs(t, err, ErrNotPlayer)

	assert.Equal(t, 0, g.HitCountB)
	assert.Equal(t, Unknown, g.HitsB[5])
	assert.NotNil(t, g.PendingShot)

	rec, err := g.RevealShotResult(b.id, false, t0)
	require.NoError(t, err)
	assert.Equal(t, ShotRecord{Shooter: PlayerA, X: 5, Y: 0, Hit: false, At: t0}, rec)
	assert.Equal(t, Miss, g.HitsB[5])
}

func TestWinTriggersExactlyAtFleetSize(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)

	for i, target := range fleetCellsB {
		exchange(t, g, a.id, b.id, target, true)
		if i < len(fleetCellsB)-1 {
			require.False(t, g.GameOver, "game ended early after %d hits", i+1)
			require.Equal(t, PlayerNone, g.Winner)
			exchange(t, g, b.id, a.id, emptyCellsA[i], false)
		}
	}
	require.True(t, g.GameOver)
	assert.Equal(t, PlayerA, g.Winner)
	assert.Equal(t, PlayerA, g.Turn, "turn frozen with the winner")

	assert.ErrorIs(t, g.FireShot(b.id, 0, 9, t0), ErrGameOver)
	assert.ErrorIs(t, g.FireShot(a.id, 0, 9, t0), ErrGameOver)
	_, err := g.RevealShotResult(b.id, true, t0)
	assert.ErrorIs(t, err, ErrNoPendingShot)
}

func TestDefenderWinsWhenShooterFleetSunk(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)

	// A always misses on rows 8 and 9, B sinks A.
	for i, target := range fleetCellsA {
		exchange(t, g, a.id, b.id, 99-i, false)
		exchange(t, g, b.id, a.id, target, true)
	}
	require.True(t, g.GameOver)
	assert.Equal(t, PlayerB, g.Winner)
	assert.Equal(t, 17, g.HitCountA)
	assert.Equal(t, PlayerB, g.Turn)
}

func TestRandomPlayKeepsInvariants(t *testing.T) {
	rng := SeededRand(42)
	for round := 0; round < 20; round++ {
		boardA, err := PlaceFleet(StandardRules(), rng)
		require.NoError(t, err)
		boardB, err := PlaceFleet(StandardRules(), rng)
		require.NoError(t, err)
		a := seat{id: "alice", board: boardA, salt: bytes.Repeat([]byte{7}, SaltSize)}
		b := seat{id: "bob", board: boardB, salt: bytes.Repeat([]byte{9}, SaltSize)}
		g := startedGame(t, a, b)

		boards := map[Player]Board{PlayerA: boardA, PlayerB: boardB}
		lastHits := map[Player]int{}
		lastTurn := g.Turn
		for !g.GameOver {
			shooter := g.Turn
			defender := shooter.Opponent()
			grid := g.HitsOn(defender)
			var target int
			for {
				target = rng.IntN(100)
				if grid[target] == Unknown {
					break
				}
			}
			snapshot := append(Grid(nil), grid...)
			exchange(t, g, g.PlayerID(shooter), g.PlayerID(defender), target, boards[defender].Occupied(target))

			for i, s := range snapshot {
				if s != Unknown {
					require.Equal(t, s, g.HitsOn(defender)[i], "cell %d overwritten", i)
				}
			}
			for _, p := range []Player{PlayerA, PlayerB} {
				require.GreaterOrEqual(t, g.HitCount(p), lastHits[p])
				lastHits[p] = g.HitCount(p)
			}
			if !g.GameOver {
				require.Equal(t, lastTurn.Opponent(), g.Turn)
				lastTurn = g.Turn
			}
		}
		require.Equal(t, 17, g.HitCount(g.Winner.Opponent()))
		require.NoError(t, g.RevealBoardPlayerA(a.id, a.board, a.salt, t0))
		require.NoError(t, g.RevealBoardPlayerB(b.id, b.board, b.salt, t0))
		require.True(t, g.Verified())
	}
}

func TestRevealBoardPreconditions(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)

	assert.ErrorIs(t, g.RevealBoardPlayerA(a.id, a.board, a.salt, t0), ErrGameNotOver)

	playAWins(t, g, a, b, fleetCellsB, emptyCellsA, func(int) bool { return false })
	require.True(t, g.GameOver)

	assert.ErrorIs(t, g.RevealBoardPlayerA(b.id, b.board, b.salt, t0), ErrWrongRevealer)
	assert.ErrorIs(t, g.RevealBoard(PlayerNone, a.id, a.board, a.salt, t0), ErrWrongRevealer)
	assert.ErrorIs(t, g.RevealBoardPlayerA(a.id, a.board[:99], a.salt, t0), ErrInvalidBoard)
	assert.ErrorIs(t, g.RevealBoardPlayerA(a.id, a.board, a.salt[:31], t0), ErrInvalidSalt)

	bad := append(Board(nil), a.board...)
	bad[99] = 7
	err := g.RevealBoardPlayerA(a.id, bad, a.salt, t0)
	assert.ErrorIs(t, err, ErrInvalidBoard)
	assert.Equal(t, KindInput, KindOf(err))

	require.NoError(t, g.RevealBoardPlayerA(a.id, a.board, a.salt, t0))
	assert.ErrorIs(t, g.RevealBoardPlayerA(a.id, a.board, a.salt, t0), ErrAlreadyRevealed)
	assert.False(t, g.Verified())
}

func TestRevealRejectsCommitmentMismatch(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)
	playAWins(t, g, a, b, fleetCellsB, emptyCellsA, func(int) bool { return false })

	wrongSalt := bytes.Repeat([]byte{0xEE}, SaltSize)
	err := g.RevealBoardPlayerB(b.id, b.board, wrongSalt, t0)
	assert.ErrorIs(t, err, ErrCommitmentMismatch)
	assert.Equal(t, KindIntegrity, KindOf(err))

	// a legal fleet that was not the committed one
	other := BoardFromCells(100, 5, 6, 7, 8, 9, 15, 16, 17, 18, 25, 26, 27, 35, 36, 37, 55, 56)
	err = g.RevealBoardPlayerB(b.id, other, b.salt, t0)
	assert.ErrorIs(t, err, ErrCommitmentMismatch)
	assert.False(t, g.RevealedB)
	assert.Nil(t, g.BoardB)
}

func TestRevealRejectsInconsistentAnswers(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)

	// B's first shot lands on A's carrier, A lies and answers miss.
	aTargets := append([]int{0}, emptyCellsA...)
	playAWins(t, g, a, b, fleetCellsB, aTargets, func(c int) bool { return false })
	require.Equal(t, Miss, g.HitsA[0])
	require.True(t, g.GameOver)

	err := g.RevealBoardPlayerA(a.id, a.board, a.salt, t0)
	assert.ErrorIs(t, err, ErrInconsistentReveal)
	assert.Equal(t, KindIntegrity, KindOf(err))
	assert.False(t, g.RevealedA)

	require.NoError(t, g.RevealBoardPlayerB(b.id, b.board, b.salt, t0))
	assert.Equal(t, PhaseGameOver, g.Phase())
}

func TestRevealRejectsInvalidFleetShape(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	// 17 isolated cells: consistent with every answer but not a fleet
	scattered := []int{0, 2, 4, 6, 8, 20, 22, 24, 26, 28, 40, 42, 44, 46, 48, 60, 62}
	b := newSeat("bob", 2, scattered)
	g := startedGame(t, a, b)
	playAWins(t, g, a, b, scattered, emptyCellsA, func(int) bool { return false })
	require.True(t, g.GameOver)

	err := g.RevealBoardPlayerB(b.id, b.board, b.salt, t0)
	assert.ErrorIs(t, err, ErrInvalidFleetConfiguration)
	assert.Equal(t, KindIntegrity, KindOf(err))
	assert.False(t, g.RevealedB)
}

func TestGameJSONRoundTrip(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)
	exchange(t, g, a.id, b.id, 5, true)
	require.NoError(t, g.FireShot(b.id, 0, 0, t0))

	raw, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"hits_b":".....x`)

	var back Game
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, g.CommitmentA, back.CommitmentA)
	assert.Equal(t, g.HitsB, back.HitsB)
	assert.Equal(t, g.PendingShot, back.PendingShot)
	assert.Equal(t, PhaseAwaitingReveal, back.Phase())
	require.NoError(t, back.CheckInvariants())
}

func TestCheckInvariantsDetectsTampering(t *testing.T) {
	a := newSeat("alice", 1, fleetCellsA)
	b := newSeat("bob", 2, fleetCellsB)
	g := startedGame(t, a, b)
	exchange(t, g, a.id, b.id, 5, true)

	tampered := g.Clone()
	tampered.HitCountB = 0
	assert.Error(t, tampered.CheckInvariants())

	tampered = g.Clone()
	tampered.PendingShot = &Coord{X: 1, Y: 1}
	tampered.PendingShotBy = PlayerA
	assert.Error(t, tampered.CheckInvariants(), "pending shot by non-turn player")

	tampered = g.Clone()
	tampered.GameOver = true
	tampered.Winner = PlayerA
	assert.Error(t, tampered.CheckInvariants())

	assert.NoError(t, g.CheckInvariants())
}
