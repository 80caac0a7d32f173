package board

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Pos is a tile coordinate. P11 is the bottom-left tile.
type Pos struct {
	X, Y int
}

func (p Pos) String() string { return fmt.Sprintf("P%d%d", p.X, p.Y) }

var posRe = regexp.MustCompile(`^P([1-9])([1-9])$`)

// ParsePos parses a tile id such as "P13".
func ParsePos(s string) (Pos, error) {
	m := posRe.FindStringSubmatch(s)
	if m == nil {
		return Pos{}, fmt.Errorf("board: invalid tile id %q", s)
	}
	x, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[2])
	return Pos{X: x, Y: y}, nil
}

// TileKind classifies what occupies a tile.
type TileKind int

const (
	TileEmpty TileKind = iota
	TileGear
	TileObstacle
)

func (k TileKind) String() string {
	switch k {
	case TileEmpty:
		return "empty"
	case TileGear:
		return "gear"
	case TileObstacle:
		return "obstacle"
	default:
		return "unknown"
	}
}

// Tile is one decoded board_encoding entry.
type Tile struct {
	Pos  Pos
	Kind TileKind
	// Parity is 'R' when x+y is even and 'L' when odd; zero for obstacles.
	Parity byte
	// Gear fields, set when Kind == TileGear.
	GearType int
	Rotation int
	Bases    string
	Encoded  string
}

var (
	emptyRe = regexp.MustCompile(`^P([1-9])([1-9])([LR])$`)
	gearRe  = regexp.MustCompile(`^G([1-4])P([1-9])([1-9])([LR])([0-3])B([012]{4})$`)
)

// ParseTile decodes a board_encoding value for the tile at key.
func ParseTile(key, value string) (Tile, error) {
	pos, err := ParsePos(key)
	if err != nil {
		return Tile{}, err
	}
	v := strings.TrimSpace(value)
	if strings.EqualFold(v, "obstacle") {
		return Tile{Pos: pos, Kind: TileObstacle, Encoded: value}, nil
	}
	if m := emptyRe.FindStringSubmatch(v); m != nil {
		if err := samePos(pos, m[1], m[2], value); err != nil {
			return Tile{}, err
		}
		return Tile{Pos: pos, Kind: TileEmpty, Parity: m[3][0], Encoded: value}, nil
	}
	if m := gearRe.FindStringSubmatch(v); m != nil {
		if err := samePos(pos, m[2], m[3], value); err != nil {
			return Tile{}, err
		}
		gt, _ := strconv.Atoi(m[1])
		rot, _ := strconv.Atoi(m[5])
		return Tile{
			Pos:      pos,
			Kind:     TileGear,
			Parity:   m[4][0],
			GearType: gt,
			Rotation: rot,
			Bases:    m[6],
			Encoded:  value,
		}, nil
	}
	return Tile{}, fmt.Errorf("board: tile %s: unrecognised encoding %q", key, value)
}

func samePos(p Pos, xs, ys, value string) error {
	x, _ := strconv.Atoi(xs)
	y, _ := strconv.Atoi(ys)
	if p.X != x || p.Y != y {
		return fmt.Errorf("board: tile %s: encoding %q names a different tile", p, value)
	}
	return nil
}

// Board is the decoded grid.
type Board struct {
	Cols, Rows int
	Tiles      map[Pos]Tile
}

// ParseDimensions parses "CxR" (e.g. "3x3").
func ParseDimensions(s string) (cols, rows int, err error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("board: invalid dimensions %q", s)
	}
	cols, err1 := strconv.Atoi(parts[0])
	rows, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || cols < 1 || rows < 1 || cols > 9 || rows > 9 {
		return 0, 0, fmt.Errorf("board: invalid dimensions %q", s)
	}
	return cols, rows, nil
}

// ParseBoard decodes a board_encoding map. When dimensions is empty the grid
// size is inferred from the largest coordinates present.
func ParseBoard(dimensions string, encoding map[string]string) (*Board, error) {
	b := &Board{Tiles: make(map[Pos]Tile, len(encoding))}
	for k, v := range encoding {
		t, err := ParseTile(k, v)
		if err != nil {
			return nil, err
		}
		b.Tiles[t.Pos] = t
		b.Cols = max(b.Cols, t.Pos.X)
		b.Rows = max(b.Rows, t.Pos.Y)
	}
	if dimensions == "" {
		return b, nil
	}
	cols, rows, err := ParseDimensions(dimensions)
	if err != nil {
		return nil, err
	}
	if b.Cols > cols || b.Rows > rows {
		return nil, fmt.Errorf("board: tiles exceed dimensions %s", dimensions)
	}
	b.Cols, b.Rows = cols, rows
	return b, nil
}

// Tile looks up a tile. ok is false for positions missing from the encoding.
func (b *Board) Tile(p Pos) (Tile, bool) {
	if b == nil {
		return Tile{}, false
	}
	t, ok := b.Tiles[p]
	return t, ok
}

// InBounds reports whether p lies on the grid.
func (b *Board) InBounds(p Pos) bool {
	return b != nil && p.X >= 1 && p.Y >= 1 && p.X <= b.Cols && p.Y <= b.Rows
}

// Gears returns gear tiles ordered by row, then column.
func (b *Board) Gears() []Tile {
	var out []Tile
	for _, t := range b.Tiles {
		if t.Kind == TileGear {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pos.Y != out[j].Pos.Y {
			return out[i].Pos.Y < out[j].Pos.Y
		}
		return out[i].Pos.X < out[j].Pos.X
	})
	return out
}
