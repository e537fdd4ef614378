package battleship

// MaxBoardSize bounds the side length so a grid fits comfortably in one record.
const MaxBoardSize = 32

// Rules are the protocol parameters of a game: board side length and the
// ship lengths that must tile each player's occupied cells.
type Rules struct {
	BoardSize int   `json:"board_size" yaml:"board_size"`
	Fleet     []int `json:"fleet" yaml:"fleet"`
}

// StandardRules is the 10x10 board with ships of length 5, 4, 3, 3 and 2.
func StandardRules() Rules {
	return Rules{BoardSize: 10, Fleet: []int{5, 4, 3, 3, 2}}
}

func (r Rules) Validate() error {
	if r.BoardSize < 2 || r.BoardSize > MaxBoardSize {
		return ErrInvalidRules
	}
	if len(r.Fleet) == 0 {
		return ErrInvalidRules
	}
	for _, l := range r.Fleet {
		if l < 1 || l > r.BoardSize {
			return ErrInvalidRules
		}
	}
	if r.ShipSquares() > r.Cells() {
		return ErrInvalidRules
	}
	return nil
}

func (r Rules) Cells() int { return r.BoardSize * r.BoardSize }

// ShipSquares is the number of hits that sinks a whole fleet.
func (r Rules) ShipSquares() int {
	n := 0
	for _, l := range r.Fleet {
		n += l
	}
	return n
}

func (r Rules) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < r.BoardSize && y < r.BoardSize
}

// Index maps (x, y) to the row-major cell index.
func (r Rules) Index(x, y int) int { return y*r.BoardSize + x }

// CoordOf is the inverse of Index.
func (r Rules) CoordOf(i int) Coord { return Coord{X: i % r.BoardSize, Y: i / r.BoardSize} }

func (r Rules) clone() Rules {
	return Rules{BoardSize: r.BoardSize, Fleet: append([]int(nil), r.Fleet...)}
}
