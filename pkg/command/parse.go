package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ixentbench/purple/pkg/board"
	"github.com/ixentbench/purple/pkg/errmodel"
)

// MaxOps bounds the number of operations in one command.
const MaxOps = 8

var (
	preMoveRe = regexp.MustCompile(`^G@([A-Za-z0-9]+):b=(\d+)$`)
	rotateRe  = regexp.MustCompile(`^G@([A-Za-z0-9]+)([+-])(\d+)$`)
	placeRe   = regexp.MustCompile(`^G(\d+)@([A-Za-z0-9]+)\(b=(\d+)\)([+-])(\d+)$`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// Parse parses DSL text into a Command without looking at the board.
// Operations keep their textual order; Validator.Check reorders them.
func Parse(text string) (Command, *errmodel.Error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, errmodel.ParseError("command is empty", "")
	}
	segments := strings.Split(text, ";")
	if len(segments) > MaxOps {
		return Command{}, errmodel.ParseError("too many operations in one command", text)
	}
	cmd := Command{Ops: make([]Op, 0, len(segments))}
	for _, seg := range segments {
		op, err := parseOp(seg)
		if err != nil {
			return Command{}, err
		}
		cmd.Ops = append(cmd.Ops, op)
	}
	return cmd, nil
}

func parseOp(seg string) (Op, *errmodel.Error) {
	s := spaceRe.ReplaceAllString(seg, "")
	if s == "" {
		return Op{}, errmodel.ParseError("empty operation between ';' separators", seg)
	}
	if strings.EqualFold(s, passLiteral) {
		return Op{Kind: KindPass}, nil
	}
	if m := preMoveRe.FindStringSubmatch(s); m != nil {
		pos, err := parseTarget(m[1], s)
		if err != nil {
			return Op{}, err
		}
		b, err := parseOrientation(m[2], s)
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: KindPreMove, Target: pos, Orientation: b}, nil
	}
	if m := rotateRe.FindStringSubmatch(s); m != nil {
		pos, err := parseTarget(m[1], s)
		if err != nil {
			return Op{}, err
		}
		turn, err := parseTurn(m[2], m[3], s)
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: KindRotate, Target: pos, Turn: turn}, nil
	}
	if m := placeRe.FindStringSubmatch(s); m != nil {
		gt, _ := strconv.Atoi(m[1])
		if gt < 1 || gt > 4 {
			return Op{}, errmodel.ParseError("gear type must be 1..4", s)
		}
		pos, err := parseTarget(m[2], s)
		if err != nil {
			return Op{}, err
		}
		b, err := parseOrientation(m[3], s)
		if err != nil {
			return Op{}, err
		}
		turn, err := parseTurn(m[4], m[5], s)
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: KindPlace, Target: pos, GearType: gt, Orientation: b, Turn: turn}, nil
	}
	return Op{}, errmodel.ParseError("operation does not match the command syntax", strings.TrimSpace(seg))
}

func parseTarget(id, frag string) (board.Pos, *errmodel.Error) {
	pos, err := board.ParsePos(id)
	if err != nil {
		return board.Pos{}, errmodel.ParseError("malformed tile identifier "+strconv.Quote(id), frag)
	}
	return pos, nil
}

func parseOrientation(digits, frag string) (int, *errmodel.Error) {
	b, err := strconv.Atoi(digits)
	if err != nil || b < 0 || b > 3 {
		return 0, errmodel.ParseError("orientation b must be 0..3", frag)
	}
	return b, nil
}

func parseTurn(sign, digits, frag string) (int, *errmodel.Error) {
	angle, err := strconv.Atoi(digits)
	if err != nil || angle <= 0 || angle >= 360 || angle%AngleStep != 0 {
		return 0, errmodel.ParseError("rotation angle must be a positive multiple of 90 below 360", frag)
	}
	if sign == "-" {
		angle = -angle
	}
	return angle, nil
}
