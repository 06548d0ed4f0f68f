package domain

import (
	"strings"
	"time"
)

// Kind names an instruction of the script language.
type Kind string

// Instruction kinds, spelled as they appear in scripts.
const (
	KindStep    Kind = "Step"
	KindSpeak   Kind = "Speak"
	KindListen  Kind = "Listen"
	KindBranch  Kind = "Branch"
	KindSilence Kind = "Silence"
	KindDefault Kind = "Default"
	KindExit    Kind = "Exit"
)

// IsTransition reports whether instructions of this kind name a target step.
func (k Kind) IsTransition() bool {
	return k == KindBranch || k == KindSilence || k == KindDefault
}

// TokenLine is one non-empty, non-comment line of a script split into tokens.
type TokenLine struct {
	Line   int      // 1-based line number in the source
	Tokens []string // Tokens[0] is the instruction kind
}

// Kind returns the instruction kind named by the first token.
func (t TokenLine) Kind() Kind {
	if len(t.Tokens) == 0 {
		return ""
	}
	return Kind(t.Tokens[0])
}

// String joins the tokens back with single spaces.
func (t TokenLine) String() string {
	return strings.Join(t.Tokens, " ")
}

// Instruction is a tagged variant: Kind selects which fields are meaningful.
//
//	Speak   -> Expr
//	Listen  -> Timeout
//	Branch  -> Keyword, Target (the first Branch line of its step)
//	Silence -> Target
//	Default -> Target
//	Exit    -> none
type Instruction struct {
	Kind    Kind          `json:"kind" yaml:"kind"`
	Line    int           `json:"line,omitempty" yaml:"line,omitempty"`
	Expr    Expression    `json:"expr,omitempty" yaml:"expr,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Keyword string        `json:"keyword,omitempty" yaml:"keyword,omitempty"`
	Target  string        `json:"target,omitempty" yaml:"target,omitempty"`
}

// Speak builds a Speak instruction.
func Speak(expr Expression) Instruction {
	return Instruction{Kind: KindSpeak, Expr: expr}
}

// Listen builds a Listen instruction.
func Listen(timeout time.Duration) Instruction {
	return Instruction{Kind: KindListen, Timeout: timeout}
}

// Branch builds a Branch instruction.
func Branch(keyword, target string) Instruction {
	return Instruction{Kind: KindBranch, Keyword: keyword, Target: target}
}

// Silence builds a Silence instruction.
func Silence(target string) Instruction {
	return Instruction{Kind: KindSilence, Target: target}
}

// Default builds a Default instruction.
func Default(target string) Instruction {
	return Instruction{Kind: KindDefault, Target: target}
}

// Exit builds an Exit instruction.
func Exit() Instruction {
	return Instruction{Kind: KindExit}
}

// PartKind distinguishes literal text from variable references.
type PartKind string

const (
	PartLiteral  PartKind = "literal"
	PartVariable PartKind = "variable"
)

// Part is one piece of an Expression.
type Part struct {
	Kind  PartKind `json:"kind" yaml:"kind"`
	Value string   `json:"value" yaml:"value"` // literal text, or the variable name
}

// Literal returns a literal part.
func Literal(text string) Part {
	return Part{Kind: PartLiteral, Value: text}
}

// Variable returns a variable reference part.
func Variable(name string) Part {
	return Part{Kind: PartVariable, Value: name}
}

// Expression is an ordered list of parts concatenated at execution time.
type Expression []Part

// Lookup resolves a variable name. ok is false when the variable is unset.
type Lookup func(name string) (value string, ok bool)

// Resolve concatenates the parts, substituting variables through lookup.
// Unset variables render as a visible "[name]" placeholder.
func (e Expression) Resolve(lookup Lookup) string {
	var sb strings.Builder
	for _, p := range e {
		switch p.Kind {
		case PartVariable:
			if lookup != nil {
				if v, ok := lookup(p.Value); ok {
					sb.WriteString(v)
					continue
				}
			}
			sb.WriteString("[" + p.Value + "]")
		default:
			sb.WriteString(p.Value)
		}
	}
	return sb.String()
}

// Variables lists the variable names referenced by the expression, in order.
func (e Expression) Variables() []string {
	var names []string
	for _, p := range e {
		if p.Kind == PartVariable {
			names = append(names, p.Value)
		}
	}
	return names
}
