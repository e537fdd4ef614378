package battleship

import "sort"

// ValidateFleet checks that the occupied cells of board are exactly covered
// by straight, non-overlapping ships whose lengths are the rules' fleet.
// Ships may touch each other.
func ValidateFleet(board Board, r Rules) error {
	if err := board.validate(r); err != nil {
		return err
	}
	occupied := 0
	for _, c := range board {
		if c == CellShip {
			occupied++
		}
	}
	if occupied != r.ShipSquares() {
		return ErrInvalidFleetConfiguration
	}

	// distinct lengths, longest first, with remaining counts
	counts := make(map[int]int, len(r.Fleet))
	for _, l := range r.Fleet {
		counts[l]++
	}
	lengths := make([]int, 0, len(counts))
	for l := range counts {
		lengths = append(lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(lengths)))

	t := &tiler{
		size:    r.BoardSize,
		board:   board,
		covered: make([]bool, len(board)),
		lengths: lengths,
		counts:  counts,
	}
	if !t.solve(0) {
		return ErrInvalidFleetConfiguration
	}
	return nil
}

// tiler searches for an exact cover of the ship cells. The first uncovered
// ship cell in row-major order can only be the top or left end of a ship,
// so each step tries every remaining length in both directions from there.
type tiler struct {
	size    int
	board   Board
	covered []bool
	lengths []int
	counts  map[int]int
}

func (t *tiler) solve(from int) bool {
	start := -1
	for i := from; i < len(t.board); i++ {
		if t.board[i] == CellShip && !t.covered[i] {
			start = i
			break
		}
	}
	if start < 0 {
		return true
	}
	x, y := start%t.size, start/t.size
	for _, l := range t.lengths {
		if t.counts[l] == 0 {
			continue
		}
		dirs := [][2]int{{1, 0}, {0, 1}}
		if l == 1 {
			dirs = dirs[:1]
		}
		for _, d := range dirs {
			cells, ok := t.span(x, y, d[0], d[1], l)
			if !ok {
				continue
			}
			t.mark(cells, true)
			t.counts[l]--
			if t.solve(start + 1) {
				return true
			}
			t.counts[l]++
			t.mark(cells, false)
		}
	}
	return false
}

func (t *tiler) span(x, y, dx, dy, l int) ([]int, bool) {
	cells := make([]int, 0, l)
	for k := 0; k < l; k++ {
		cx, cy := x+dx*k, y+dy*k
		if cx >= t.size || cy >= t.size {
			return nil, false
		}
		i := cy*t.size + cx
		if t.board[i] != CellShip || t.covered[i] {
			return nil, false
		}
		cells = append(cells, i)
	}
	return cells, true
}

func (t *tiler) mark(cells []int, v bool) {
	for _, i := range cells {
		t.covered[i] = v
	}
}
