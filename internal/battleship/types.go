package battleship

import "time"

// Player identifies a board slot. The zero value means "nobody".
type Player uint8

const (
	PlayerNone Player = 0
	PlayerA    Player = 1
	PlayerB    Player = 2
)

func (p Player) Opponent() Player {
	switch p {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	default:
		return PlayerNone
	}
}

func (p Player) String() string {
	switch p {
	case PlayerA:
		return "A"
	case PlayerB:
		return "B"
	default:
		return "-"
	}
}

// CellStatus is what is publicly known about a cell that was fired upon.
type CellStatus uint8

const (
	Unknown CellStatus = 0
	Miss    CellStatus = 1
	Hit     CellStatus = 2
)

// Phase is derived from the record, never stored.
type Phase string

const (
	PhaseWaiting        Phase = "WAITING"
	PhaseActive         Phase = "ACTIVE"
	PhaseAwaitingReveal Phase = "AWAITING_REVEAL"
	PhaseGameOver       Phase = "GAME_OVER"
	PhaseVerified       Phase = "VERIFIED"
)

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ShotRecord is one resolved shot.
type ShotRecord struct {
	Shooter Player    `json:"shooter"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	Hit     bool      `json:"hit"`
	At      time.Time `json:"at"`
}

// Game is the persisted state of one match.
type Game struct {
	ID    string `json:"id"`
	Rules Rules  `json:"rules"`

	PlayerA     string     `json:"player_a"`
	PlayerB     string     `json:"player_b,omitempty"`
	CommitmentA Commitment `json:"commitment_a"`
	CommitmentB Commitment `json:"commitment_b"`

	Turn Player `json:"turn"`

	// HitsA holds the shots received by A; HitCountA counts hits landed on A's fleet.
	HitsA     Grid `json:"hits_a"`
	HitsB     Grid `json:"hits_b"`
	HitCountA int  `json:"hit_count_a"`
	HitCountB int  `json:"hit_count_b"`

	Initialized bool   `json:"initialized"`
	GameOver    bool   `json:"game_over"`
	Winner      Player `json:"winner"`

	PendingShot   *Coord `json:"pending_shot,omitempty"`
	PendingShotBy Player `json:"pending_shot_by"`

	RevealedA bool  `json:"revealed_a"`
	RevealedB bool  `json:"revealed_b"`
	BoardA    Board `json:"board_a,omitempty"`
	BoardB    Board `json:"board_b,omitempty"`

	Shots []ShotRecord `json:"shots"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Game) Phase() Phase {
	switch {
	case !g.Initialized:
		return PhaseWaiting
	case g.GameOver && g.RevealedA && g.RevealedB:
		return PhaseVerified
	case g.GameOver:
		return PhaseGameOver
	case g.PendingShot != nil:
		return PhaseAwaitingReveal
	default:
		return PhaseActive
	}
}

// SlotOf returns which slot the identity occupies.
func (g *Game) SlotOf(id string) Player {
	switch {
	case id == "":
		return PlayerNone
	case id == g.PlayerA:
		return PlayerA
	case id == g.PlayerB:
		return PlayerB
	default:
		return PlayerNone
	}
}

// PlayerID returns the identity in slot p.
func (g *Game) PlayerID(p Player) string {
	switch p {
	case PlayerA:
		return g.PlayerA
	case PlayerB:
		return g.PlayerB
	default:
		return ""
	}
}

// WinnerID is the identity of the winner, empty while the game runs.
func (g *Game) WinnerID() string { return g.PlayerID(g.Winner) }

func (g *Game) Verified() bool { return g.Phase() == PhaseVerified }

// HitsOn returns the grid of shots received by p.
func (g *Game) HitsOn(p Player) Grid {
	if p == PlayerA {
		return g.HitsA
	}
	return g.HitsB
}

// HitCount returns the number of hits landed on p's fleet.
func (g *Game) HitCount(p Player) int {
	if p == PlayerA {
		return g.HitCountA
	}
	return g.HitCountB
}

func (g *Game) commitmentOf(p Player) Commitment {
	if p == PlayerA {
		return g.CommitmentA
	}
	return g.CommitmentB
}

func (g *Game) revealed(p Player) bool {
	if p == PlayerA {
		return g.RevealedA
	}
	return g.RevealedB
}

// Clone returns a deep copy.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.Rules = g.Rules.clone()
	c.HitsA = append(Grid(nil), g.HitsA...)
	c.HitsB = append(Grid(nil), g.HitsB...)
	if g.BoardA != nil {
		c.BoardA = append(Board(nil), g.BoardA...)
	}
	if g.BoardB != nil {
		c.BoardB = append(Board(nil), g.BoardB...)
	}
	if g.PendingShot != nil {
		p := *g.PendingShot
		c.PendingShot = &p
	}
	c.Shots = append([]ShotRecord(nil), g.Shots...)
	return &c
}
