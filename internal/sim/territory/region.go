package territory

import (
	"fmt"
	"strings"
)

// RegionSize is the edge length of a claimable region in blocks.
const RegionSize = 16

type Direction int

const (
	South Direction = iota
	West
	North
	East
)

// Horizontals lists the four neighbour directions in evaluation order.
var Horizontals = [4]Direction{South, West, North, East}

func (d Direction) String() string {
	switch d {
	case South:
		return "SOUTH"
	case West:
		return "WEST"
	case North:
		return "NORTH"
	case East:
		return "EAST"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SOUTH":
		return South, true
	case "WEST":
		return West, true
	case "NORTH":
		return North, true
	case "EAST":
		return East, true
	}
	return 0, false
}

// RegionPos identifies a RegionSize x RegionSize column of the world.
type RegionPos struct {
	Dim int
	X   int
	Z   int
}

func (r RegionPos) Offset(d Direction, n int) RegionPos {
	switch d {
	case South:
		r.Z += n
	case North:
		r.Z -= n
	case West:
		r.X -= n
	case East:
		r.X += n
	}
	return r
}

// Within reports whether o lies in the same dimension and inside the square of
// the given radius around r.
func (r RegionPos) Within(o RegionPos, radius int) bool {
	if r.Dim != o.Dim {
		return false
	}
	return abs(r.X-o.X) <= radius && abs(r.Z-o.Z) <= radius
}

// Origin is the north-west corner block of the region at y=0.
func (r RegionPos) Origin() BlockPos {
	return BlockPos{Dim: r.Dim, X: r.X * RegionSize, Z: r.Z * RegionSize}
}

func (r RegionPos) Less(o RegionPos) bool {
	if r.Dim != o.Dim {
		return r.Dim < o.Dim
	}
	if r.X != o.X {
		return r.X < o.X
	}
	return r.Z < o.Z
}

func (r RegionPos) String() string {
	return fmt.Sprintf("[%d, %d] in dim %d", r.X, r.Z, r.Dim)
}

type BlockPos struct {
	Dim int
	X   int
	Y   int
	Z   int
}

func (p BlockPos) Region() RegionPos {
	return RegionPos{Dim: p.Dim, X: floorDiv(p.X, RegionSize), Z: floorDiv(p.Z, RegionSize)}
}

func (p BlockPos) Less(o BlockPos) bool {
	if p.Dim != o.Dim {
		return p.Dim < o.Dim
	}
	if p.X != o.X {
		return p.X < o.X
	}
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.Z < o.Z
}

func (p BlockPos) String() string {
	return fmt.Sprintf("(%d, %d, %d) in dim %d", p.X, p.Y, p.Z, p.Dim)
}

func (p BlockPos) Array() [4]int { return [4]int{p.Dim, p.X, p.Y, p.Z} }

func BlockPosFromArray(a [4]int) BlockPos {
	return BlockPos{Dim: a[0], X: a[1], Y: a[2], Z: a[3]}
}

func (r RegionPos) Array() [3]int { return [3]int{r.Dim, r.X, r.Z} }

func RegionPosFromArray(a [3]int) RegionPos {
	return RegionPos{Dim: a[0], X: a[1], Z: a[2]}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
