// Package predicate parses the small constraint grammar contracts use
// for thresholds, stage entry conditions and watched invariants.
//
// Grammar:
//
//	expr    := operand cmp number
//	operand := field | abs(field)
//	field   := x | y | vx | vy | speed | angle | omega
//	cmp     := < | <= | > | >=
//
// Expressions are parsed once at validation time; evaluation against a
// body state is a pure function with no interpretation step.
package predicate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/venlab/physgate/pkg/types"
)

// ErrSyntax is returned for any expression outside the grammar.
var ErrSyntax = errors.New("predicate syntax error")

// Field selects one scalar of a body state.
type Field string

const (
	FieldX     Field = "x"
	FieldY     Field = "y"
	FieldVX    Field = "vx"
	FieldVY    Field = "vy"
	FieldSpeed Field = "speed"
	FieldAngle Field = "angle"
	FieldOmega Field = "omega"
)

// Op is a comparison operator.
type Op string

const (
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
)

// Tree is a parsed predicate. The zero value is invalid; obtain trees
// via Parse.
type Tree struct {
	Field     Field
	Abs       bool
	Op        Op
	Threshold float64
	src       string
}

// Parse compiles an expression into a predicate tree.
func Parse(expr string) (*Tree, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	var op Op
	var idx int
	// Two-character operators are matched before their one-character
	// prefixes.
	for _, cand := range []Op{OpLE, OpGE, OpLT, OpGT} {
		if i := strings.Index(s, string(cand)); i >= 0 {
			op, idx = cand, i
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("%w: no comparison in %q", ErrSyntax, expr)
	}

	lhs := strings.TrimSpace(s[:idx])
	rhs := strings.TrimSpace(s[idx+len(op):])

	abs := false
	if strings.HasPrefix(lhs, "abs(") && strings.HasSuffix(lhs, ")") {
		abs = true
		lhs = strings.TrimSpace(lhs[4 : len(lhs)-1])
	}

	field := Field(lhs)
	switch field {
	case FieldX, FieldY, FieldVX, FieldVY, FieldSpeed, FieldAngle, FieldOmega:
	default:
		return nil, fmt.Errorf("%w: unknown field %q in %q", ErrSyntax, lhs, expr)
	}

	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad constant %q in %q", ErrSyntax, rhs, expr)
	}

	return &Tree{Field: field, Abs: abs, Op: op, Threshold: threshold, src: expr}, nil
}

// value extracts the selected scalar from a body state.
func (t *Tree) value(b types.BodyState) float64 {
	var v float64
	switch t.Field {
	case FieldX:
		v = b.Position.X
	case FieldY:
		v = b.Position.Y
	case FieldVX:
		v = b.Velocity.X
	case FieldVY:
		v = b.Velocity.Y
	case FieldSpeed:
		v = b.Velocity.Magnitude()
	case FieldAngle:
		v = b.Angle
	case FieldOmega:
		v = b.AngularVel
	}
	if t.Abs {
		v = math.Abs(v)
	}
	return v
}

// Margin returns a signed scalar that crosses zero exactly when the
// predicate flips from false to true: positive means satisfied.
func (t *Tree) Margin(b types.BodyState) float64 {
	v := t.value(b)
	switch t.Op {
	case OpGT, OpGE:
		return v - t.Threshold
	default:
		return t.Threshold - v
	}
}

// Holds evaluates the predicate against a body state.
func (t *Tree) Holds(b types.BodyState) bool {
	v := t.value(b)
	switch t.Op {
	case OpLT:
		return v < t.Threshold
	case OpLE:
		return v <= t.Threshold
	case OpGT:
		return v > t.Threshold
	case OpGE:
		return v >= t.Threshold
	}
	return false
}

// String returns the original source expression.
func (t *Tree) String() string { return t.src }
