package command

import (
	"fmt"
	"strings"

	"github.com/ixentbench/purple/pkg/board"
	"github.com/ixentbench/purple/pkg/errmodel"
)

// Constraint names reported in semantic errors.
const (
	ConstraintEntityExists       = "entity_exists"
	ConstraintInventoryAvailable = "inventory_available"
	ConstraintTileEmpty          = "tile_empty"
	ConstraintRotationPhase      = "rotation_phase"
	ConstraintGearPresent        = "gear_present"
	ConstraintAngleGranularity   = "angle_granularity"
	ConstraintSingleTurn         = "single_turn"
	ConstraintPlacementAlone     = "placement_alone"
	ConstraintUnambiguousTarget  = "unambiguous_target"
	ConstraintPassAllowed        = "pass_allowed"
)

// Rules tunes semantic validation.
type Rules struct {
	// MaxTurn is the largest accepted rotation magnitude in degrees.
	MaxTurn int
	// AllowPass lets the model answer PASS itself.
	AllowPass bool
	// EnforcePhase refuses rotations and pre-moves while gears remain in
	// inventory. The game server is the authority on phases, so it is off by default.
	EnforcePhase bool
}

// DefaultRules returns MaxTurn 90 with PASS and phase checks off.
func DefaultRules() Rules { return Rules{MaxTurn: AngleStep} }

// Result is the outcome of checking one model reply.
type Result struct {
	Accepted  bool
	Command   Command
	Rationale string
	// Err is set when the reply was rejected.
	Err *errmodel.Error
	// Raw is the reply text that was checked.
	Raw string
}

// Reason describes why a reply was rejected, for hints and fallback rationales.
func (r Result) Reason() string {
	if r.Accepted || r.Err == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(r.Err.Code)
	b.WriteString(": ")
	b.WriteString(r.Err.Message)
	if c := r.Err.Constraint(); c != "" {
		fmt.Fprintf(&b, " (constraint %s)", c)
	}
	if f, ok := r.Err.Context["fragment"].(string); ok && f != "" {
		fmt.Fprintf(&b, " in %q", f)
	}
	return b.String()
}

// Validator runs extract, parse and semantic validation.
type Validator struct {
	rules     Rules
	extractor *Extractor
}

// NewValidator builds a Validator. A nil extractor selects DefaultExtractor.
func NewValidator(rules Rules, ex *Extractor) *Validator {
	if rules.MaxTurn <= 0 {
		rules.MaxTurn = AngleStep
	}
	if ex == nil {
		ex = DefaultExtractor()
	}
	return &Validator{rules: rules, extractor: ex}
}

// Rules returns the active rules.
func (v *Validator) Rules() Rules { return v.rules }

// Check turns raw model text into an accepted Command or a rejection.
func (v *Validator) Check(raw string, obs *board.Observation) Result {
	res := Result{Raw: raw}
	ext, err := v.extractor.Extract(raw)
	if err != nil {
		res.Err = err
		return res
	}
	cmd, err := Parse(ext.Command)
	if err != nil {
		res.Err = err
		return res
	}
	cmd, err = v.Validate(cmd, obs)
	if err != nil {
		res.Err = err
		return res
	}
	res.Accepted, res.Command, res.Rationale = true, cmd, ext.Rationale
	return res
}

// Validate checks a parsed command against the observation and returns it
// in execution order: pre-moves first, then the turn-bearing operation.
func (v *Validator) Validate(cmd Command, obs *board.Observation) (Command, *errmodel.Error) {
	if len(cmd.Ops) == 0 {
		return Command{}, errmodel.ParseError("command is empty", "")
	}
	if cmd.hasPass() {
		if !v.rules.AllowPass {
			return Command{}, errmodel.SemanticError(ConstraintPassAllowed, "PASS is not an allowed move; choose a placement or rotation", nil)
		}
		if len(cmd.Ops) != 1 {
			return Command{}, errmodel.SemanticError(ConstraintPassAllowed, "PASS cannot be combined with other operations", nil)
		}
		return cmd, nil
	}

	seen := make(map[board.Pos]bool, len(cmd.Ops))
	turns, places := 0, 0
	for _, op := range cmd.Ops {
		if seen[op.Target] {
			return Command{}, errmodel.SemanticError(ConstraintUnambiguousTarget,
				fmt.Sprintf("tile %s is targeted more than once", op.Target), map[string]any{"tile": op.Target.String()})
		}
		seen[op.Target] = true
		if op.TurnsNetwork() {
			turns++
		}
		if op.Kind == KindPlace {
			places++
		}
	}
	if turns != 1 {
		return Command{}, errmodel.SemanticError(ConstraintSingleTurn,
			fmt.Sprintf("command must contain exactly one rotation of the network, found %d", turns), nil)
	}
	if places == 1 && len(cmd.Ops) > 1 {
		return Command{}, errmodel.SemanticError(ConstraintPlacementAlone, "a placement cannot be combined with other operations", nil)
	}

	b := obs.Board()
	for _, op := range cmd.Ops {
		if err := v.checkOp(op, b, obs); err != nil {
			return Command{}, err
		}
	}
	return cmd.ordered(), nil
}

func (v *Validator) checkOp(op Op, b *board.Board, obs *board.Observation) *errmodel.Error {
	tileCtx := map[string]any{"tile": op.Target.String()}
	tile, ok := b.Tile(op.Target)
	if !ok || !b.InBounds(op.Target) {
		return errmodel.SemanticError(ConstraintEntityExists, fmt.Sprintf("tile %s is not on the board", op.Target), tileCtx)
	}
	if tile.Kind == board.TileObstacle {
		return errmodel.SemanticError(ConstraintEntityExists, fmt.Sprintf("tile %s is an obstacle", op.Target), tileCtx)
	}
	if op.TurnsNetwork() && abs(op.Turn) > v.rules.MaxTurn {
		return errmodel.SemanticError(ConstraintAngleGranularity,
			fmt.Sprintf("rotation %+d exceeds the %d degree limit", op.Turn, v.rules.MaxTurn), tileCtx)
	}
	switch op.Kind {
	case KindPlace:
		gear := fmt.Sprintf("G%d", op.GearType)
		if obs.InventoryTotal() == 0 || obs.Available(gear) < 1 {
			return errmodel.SemanticError(ConstraintInventoryAvailable,
				fmt.Sprintf("no %s left in inventory", gear), map[string]any{"gear": gear})
		}
		if tile.Kind != board.TileEmpty {
			return errmodel.SemanticError(ConstraintTileEmpty, fmt.Sprintf("tile %s already holds a gear", op.Target), tileCtx)
		}
	case KindRotate, KindPreMove:
		if total := obs.InventoryTotal(); v.rules.EnforcePhase && total > 0 {
			return errmodel.SemanticError(ConstraintRotationPhase,
				fmt.Sprintf("%d gears remain in inventory; place a gear first", total), nil)
		}
		if tile.Kind != board.TileGear {
			return errmodel.SemanticError(ConstraintGearPresent, fmt.Sprintf("tile %s holds no gear", op.Target), tileCtx)
		}
	}
	return nil
}

func (c Command) hasPass() bool {
	for _, op := range c.Ops {
		if op.Kind == KindPass {
			return true
		}
	}
	return false
}

// ordered returns a copy with pre-moves first, keeping their relative order.
func (c Command) ordered() Command {
	out := Command{Ops: make([]Op, 0, len(c.Ops))}
	for _, op := range c.Ops {
		if op.Kind == KindPreMove {
			out.Ops = append(out.Ops, op)
		}
	}
	for _, op := range c.Ops {
		if op.Kind != KindPreMove {
			out.Ops = append(out.Ops, op)
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
