package domain

import "time"

// BattleResult is the archived outcome of one game.
type BattleResult struct {
	GameID       string
	PlayerA      string
	PlayerB      string
	WinnerID     string
	Winner       string
	ResultMethod string
	Verified     bool
	RevealedA    bool
	RevealedB    bool
	HitCountA    int
	HitCountB    int
	ShotCount    int
	BoardSize    int
	Fleet        []int
	ShotLog      []byte
	BoardA       string
	BoardB       string
	CommitmentA  string
	CommitmentB  string
	StartedAt    time.Time
	EndedAt      time.Time
	Duration     time.Duration
}
