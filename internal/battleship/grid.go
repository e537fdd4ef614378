package battleship

import "fmt"

// Grid is a row-major list of shot results. It travels as a string with
// one character per cell: '.' unknown, 'o' miss, 'x' hit.
type Grid []CellStatus

func NewGrid(cells int) Grid { return make(Grid, cells) }

func (g Grid) MarshalText() ([]byte, error) {
	out := make([]byte, len(g))
	for i, c := range g {
		switch c {
		case Unknown:
			out[i] = '.'
		case Miss:
			out[i] = 'o'
		case Hit:
			out[i] = 'x'
		default:
			return nil, fmt.Errorf("grid cell %d: bad status %d", i, c)
		}
	}
	return out, nil
}

func (g *Grid) UnmarshalText(b []byte) error {
	out := make(Grid, len(b))
	for i, ch := range b {
		switch ch {
		case '.':
			out[i] = Unknown
		case 'o':
			out[i] = Miss
		case 'x':
			out[i] = Hit
		default:
			return fmt.Errorf("grid cell %d: bad symbol %q", i, ch)
		}
	}
	*g = out
	return nil
}

func (g Grid) String() string {
	b, err := g.MarshalText()
	if err != nil {
		return "<invalid grid>"
	}
	return string(b)
}

// Count returns how many cells hold status s.
func (g Grid) Count(s CellStatus) int {
	n := 0
	for _, c := range g {
		if c == s {
			n++
		}
	}
	return n
}

// Board is a full fleet layout: one byte per cell, 0 empty, 1 ship.
// Its raw bytes are exactly what the commitment hashes.
type Board []byte

const (
	CellEmpty byte = 0
	CellShip  byte = 1
)

// ParseBoard reads the wire form, a string of '0' and '1'.
func ParseBoard(s string) (Board, error) {
	b := make(Board, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			b[i] = CellEmpty
		case '1':
			b[i] = CellShip
		default:
			return nil, ErrInvalidBoard
		}
	}
	return b, nil
}

func (b Board) MarshalText() ([]byte, error) {
	out := make([]byte, len(b))
	for i, c := range b {
		switch c {
		case CellEmpty:
			out[i] = '0'
		case CellShip:
			out[i] = '1'
		default:
			return nil, fmt.Errorf("board cell %d: bad value %d", i, c)
		}
	}
	return out, nil
}

func (b *Board) UnmarshalText(text []byte) error {
	parsed, err := ParseBoard(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

func (b Board) String() string {
	t, err := b.MarshalText()
	if err != nil {
		return "<invalid board>"
	}
	return string(t)
}

// Occupied reports whether cell i holds a ship segment.
func (b Board) Occupied(i int) bool { return i >= 0 && i < len(b) && b[i] == CellShip }

// BoardFromCells builds a board with the given cell indices occupied.
func BoardFromCells(cells int, occupied ...int) Board {
	b := make(Board, cells)
	for _, i := range occupied {
		if i >= 0 && i < cells {
			b[i] = CellShip
		}
	}
	return b
}

// validate checks length and cell values against the rules.
func (b Board) validate(r Rules) error {
	if len(b) != r.Cells() {
		return ErrInvalidBoard
	}
	for _, c := range b {
		if c != CellEmpty && c != CellShip {
			return ErrInvalidBoard
		}
	}
	return nil
}
