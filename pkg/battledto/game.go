package battledto

import "time"

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Shot struct {
	Shooter string    `json:"shooter"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	Hit     bool      `json:"hit"`
	At      time.Time `json:"at"`
}

type Rules struct {
	BoardSize int   `json:"board_size"`
	Fleet     []int `json:"fleet"`
}

type RulesView struct {
	Name        string      `json:"name"`
	BoardSize   int         `json:"board_size"`
	Ships       []ShipEntry `json:"ships"`
	ShipSquares int         `json:"ship_squares"`
}

type ShipEntry struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
}

// GameView is the public snapshot of a game. Grids use '.' unknown,
// 'o' miss and 'x' hit, one character per cell in row-major order.
type GameView struct {
	ID          string    `json:"id"`
	Phase       string    `json:"phase"`
	Rules       Rules     `json:"rules"`
	PlayerA     string    `json:"player_a"`
	PlayerB     string    `json:"player_b,omitempty"`
	CommitmentA string    `json:"commitment_a"`
	CommitmentB string    `json:"commitment_b,omitempty"`
	Turn        string    `json:"turn"`
	HitsA       string    `json:"hits_a"`
	HitsB       string    `json:"hits_b"`
	HitCountA   int       `json:"hit_count_a"`
	HitCountB   int       `json:"hit_count_b"`
	PendingShot *Coord    `json:"pending_shot,omitempty"`
	PendingBy   string    `json:"pending_shot_by,omitempty"`
	GameOver    bool      `json:"game_over"`
	Winner      string    `json:"winner,omitempty"`
	WinnerID    string    `json:"winner_id,omitempty"`
	RevealedA   bool      `json:"revealed_a"`
	RevealedB   bool      `json:"revealed_b"`
	Shots       []Shot    `json:"shots"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type RevealShotResponse struct {
	Game GameView `json:"game"`
	Shot Shot     `json:"shot"`
}

// Audit is the record parties rely on once a game has ended. The winner is
// trustworthy only when Verified is true.
type Audit struct {
	GameID    string `json:"game_id"`
	Phase     string `json:"phase"`
	Verified  bool   `json:"verified"`
	Winner    string `json:"winner"`
	WinnerID  string `json:"winner_id"`
	PlayerA   string `json:"player_a"`
	PlayerB   string `json:"player_b"`
	HitCountA int    `json:"hit_count_a"`
	HitCountB int    `json:"hit_count_b"`
	ShotCount int    `json:"shot_count"`
	RevealedA bool   `json:"revealed_a"`
	RevealedB bool   `json:"revealed_b"`
	BoardA    string `json:"board_a,omitempty"`
	BoardB    string `json:"board_b,omitempty"`
}

type GameList struct {
	Player string     `json:"player"`
	Games  []GameView `json:"games"`
}

type Health struct {
	Status string `json:"status"`
}

// Event mirrors the feed payload.
type Event struct {
	Type       string            `json:"type"`
	GameID     string            `json:"game_id"`
	Phase      string            `json:"phase"`
	Attributes map[string]string `json:"attributes,omitempty"`
	At         time.Time         `json:"at"`
	Text       string            `json:"text,omitempty"`
}
