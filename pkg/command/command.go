// Package command implements the move DSL the benchmark accepts, and the
// pipeline that turns raw model text into a validated Command:
// extract (locate the command in the reply), parse (syntax), validate
// (against the current board).
//
// Grammar:
//
//	command  := op (";" op)*
//	op       := "G@" tile ":b=" orientation          pre-move
//	          | "G@" tile rotation                    rotation
//	          | "G" type "@" tile "(b=" orientation ")" rotation   placement
//	          | "PASS"
//	rotation := ("+" | "-") angle
//
// tile is P<x><y>, type is 1..4, orientation is 0..3 and angle is a positive
// multiple of AngleStep.
package command

import (
	"fmt"
	"strings"

	"github.com/ixentbench/purple/pkg/board"
)

// AngleStep is the rotation granularity in degrees.
const AngleStep = 90

// Kind is the operation type.
type Kind string

const (
	KindPlace   Kind = "place"
	KindRotate  Kind = "rotate"
	KindPreMove Kind = "pre_move"
	KindPass    Kind = "pass"
)

// Op is one ";"-separated operation.
type Op struct {
	Kind   Kind
	Target board.Pos
	// GearType is 1..4 for placements.
	GearType int
	// Orientation is the initial base rotation b (placement, pre-move).
	Orientation int
	// Turn is the signed network rotation in degrees (placement, rotation).
	Turn int
}

// TurnsNetwork reports whether the op rotates the gear network.
func (o Op) TurnsNetwork() bool { return o.Kind == KindPlace || o.Kind == KindRotate }

func (o Op) String() string {
	switch o.Kind {
	case KindPlace:
		return fmt.Sprintf("G%d@%s(b=%d)%+d", o.GearType, o.Target, o.Orientation, o.Turn)
	case KindRotate:
		return fmt.Sprintf("G@%s%+d", o.Target, o.Turn)
	case KindPreMove:
		return fmt.Sprintf("G@%s:b=%d", o.Target, o.Orientation)
	case KindPass:
		return passLiteral
	default:
		return ""
	}
}

const passLiteral = "PASS"

// Command is an ordered list of operations.
type Command struct {
	Ops []Op
}

// Pass is the fallback command.
func Pass() Command { return Command{Ops: []Op{{Kind: KindPass}}} }

// IsPass reports whether c is the fallback command.
func (c Command) IsPass() bool { return len(c.Ops) == 1 && c.Ops[0].Kind == KindPass }

// String renders the canonical DSL form, ops joined by " ; ".
func (c Command) String() string {
	parts := make([]string, len(c.Ops))
	for i, op := range c.Ops {
		parts[i] = op.String()
	}
	return strings.Join(parts, " ; ")
}
