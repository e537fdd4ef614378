package txapi

import (
	"github.com/park285/sealed-battleship/internal/battleship"
	"github.com/park285/sealed-battleship/internal/rulebook"
	"github.com/park285/sealed-battleship/pkg/battledto"
)

// ViewOf builds the public snapshot of g. Unrevealed boards never leave
// the record because the record never holds them.
func ViewOf(g *battleship.Game) battledto.GameView {
	v := battledto.GameView{
		ID:          g.ID,
		Phase:       string(g.Phase()),
		Rules:       battledto.Rules{BoardSize: g.Rules.BoardSize, Fleet: append([]int(nil), g.Rules.Fleet...)},
		PlayerA:     g.PlayerA,
		PlayerB:     g.PlayerB,
		CommitmentA: g.CommitmentA.String(),
		Turn:        g.Turn.String(),
		HitsA:       g.HitsA.String(),
		HitsB:       g.HitsB.String(),
		HitCountA:   g.HitCountA,
		HitCountB:   g.HitCountB,
		GameOver:    g.GameOver,
		RevealedA:   g.RevealedA,
		RevealedB:   g.RevealedB,
		Shots:       make([]battledto.Shot, 0, len(g.Shots)),
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	if g.PlayerB != "" {
		v.CommitmentB = g.CommitmentB.String()
	}
	if g.PendingShot != nil {
		v.PendingShot = &battledto.Coord{X: g.PendingShot.X, Y: g.PendingShot.Y}
		v.PendingBy = g.PendingShotBy.String()
	}
	if g.GameOver {
		v.Winner = g.Winner.String()
		v.WinnerID = g.WinnerID()
	}
	for _, s := range g.Shots {
		v.Shots = append(v.Shots, shotOf(s))
	}
	return v
}

func shotOf(s battleship.ShotRecord) battledto.Shot {
	return battledto.Shot{Shooter: s.Shooter.String(), X: s.X, Y: s.Y, Hit: s.Hit, At: s.At}
}

func auditOf(a battleship.AuditRecord) battledto.Audit {
	return battledto.Audit{
		GameID:    a.GameID,
		Phase:     string(a.Phase),
		Verified:  a.Verified,
		Winner:    a.Winner.String(),
		WinnerID:  a.WinnerID,
		PlayerA:   a.PlayerA,
		PlayerB:   a.PlayerB,
		HitCountA: a.HitCountA,
		HitCountB: a.HitCountB,
		ShotCount: a.ShotCount,
		RevealedA: a.RevealedA,
		RevealedB: a.RevealedB,
		BoardA:    a.BoardA.String(),
		BoardB:    a.BoardB.String(),
	}
}

func rulesOf(b rulebook.Book) battledto.RulesView {
	v := battledto.RulesView{
		Name:        b.Name,
		BoardSize:   b.BoardSize,
		Ships:       make([]battledto.ShipEntry, len(b.Ships)),
		ShipSquares: b.Rules().ShipSquares(),
	}
	for i, s := range b.Ships {
		v.Ships[i] = battledto.ShipEntry{Name: s.Name, Length: s.Length}
	}
	return v
}
