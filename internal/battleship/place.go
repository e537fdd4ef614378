package battleship

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand/v2"
)

const maxPlacementAttempts = 1000

var errPlacementFailed = errors.New("could not place fleet")

// PlaceFleet lays out the rules' fleet at random positions without overlap.
// rng may be nil, in which case a ChaCha8 generator seeded from crypto/rand
// is used so layouts are not guessable.
func PlaceFleet(r Rules, rng *rand.Rand) (Board, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, err
		}
		rng = rand.New(rand.NewChaCha8(seed))
	}
	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		if b, ok := tryPlace(r, rng); ok {
			return b, nil
		}
	}
	return nil, errPlacementFailed
}

func tryPlace(r Rules, rng *rand.Rand) (Board, bool) {
	board := make(Board, r.Cells())
	for _, l := range r.Fleet {
		placed := false
		for try := 0; try < 200 && !placed; try++ {
			horizontal := rng.IntN(2) == 0
			maxX, maxY := r.BoardSize, r.BoardSize
			if horizontal {
				maxX = r.BoardSize - l + 1
			} else {
				maxY = r.BoardSize - l + 1
			}
			x, y := rng.IntN(maxX), rng.IntN(maxY)
			if fits(board, r, x, y, l, horizontal) {
				for k := 0; k < l; k++ {
					board[cellAt(r, x, y, k, horizontal)] = CellShip
				}
				placed = true
			}
		}
		if !placed {
			return nil, false
		}
	}
	return board, true
}

func fits(board Board, r Rules, x, y, l int, horizontal bool) bool {
	for k := 0; k < l; k++ {
		if board[cellAt(r, x, y, k, horizontal)] != CellEmpty {
			return false
		}
	}
	return true
}

func cellAt(r Rules, x, y, k int, horizontal bool) int {
	if horizontal {
		return r.Index(x+k, y)
	}
	return r.Index(x, y+k)
}

// SeededRand returns a deterministic generator, handy for reproducible layouts.
func SeededRand(seed uint64) *rand.Rand {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:], seed)
	return rand.New(rand.NewChaCha8(s))
}
