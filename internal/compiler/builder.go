package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
)

// Option configures the builder.
type Option func(*config)

type config struct {
	logger *slog.Logger
	strict bool
}

// WithLogger sets the logger diagnostics are reported to as they are found.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStrict makes Compile fail when any error diagnostic was produced.
func WithStrict(strict bool) Option {
	return func(c *config) {
		c.strict = strict
	}
}

// Compile scans and builds a script in one go. The graph is returned even
// when compilation fails in strict mode, so callers can still inspect it.
func Compile(r io.Reader, opts ...Option) (*domain.Graph, domain.Diagnostics, error) {
	lines, err := Scan(r)
	if err != nil {
		return nil, nil, err
	}

	cfg := newConfig(opts)
	graph, diags := Build(lines, opts...)
	if cfg.strict {
		if err := diags.Err(); err != nil {
			return graph, diags, err
		}
		if graph.Len() == 0 {
			return graph, diags, domain.ErrEmptyGraph
		}
	}
	return graph, diags, nil
}

// Build turns token lines into a step graph. Malformed lines are reported and
// skipped; an unknown instruction kind stops the build, keeping what was
// gathered so far.
func Build(lines []domain.TokenLine, opts ...Option) (*domain.Graph, domain.Diagnostics) {
	b := &builder{
		cfg:   newConfig(opts),
		graph: domain.NewGraphBuilder(),
	}
	b.run(lines)
	return b.graph.Graph(), b.diags
}

func newConfig(opts []Option) *config {
	cfg := &config{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

type builder struct {
	cfg   *config
	graph *domain.GraphBuilder
	diags domain.Diagnostics

	// open step
	stepID   string
	stepLine int
	open     bool
	body     []domain.Instruction
	branched bool // a Branch instruction was already appended to the open step
}

func (b *builder) run(lines []domain.TokenLine) {
	defer b.flush()

	for _, tl := range lines {
		kind := tl.Kind()
		switch kind {
		case domain.KindStep:
			b.step(tl)
			continue
		case domain.KindSpeak, domain.KindListen, domain.KindBranch,
			domain.KindSilence, domain.KindDefault, domain.KindExit:
		default:
			b.errorf(tl, domain.CodeUnknownInstruction, "unknown instruction %q, compilation stopped", string(kind))
			return
		}

		if !b.open {
			b.errorf(tl, domain.CodeOrphanInstruction, "%s outside of any Step", kind)
			continue
		}

		switch kind {
		case domain.KindSpeak:
			b.speak(tl)
		case domain.KindListen:
			b.listen(tl)
		case domain.KindBranch:
			b.branch(tl)
		case domain.KindSilence, domain.KindDefault:
			b.jump(tl)
		case domain.KindExit:
			b.exit(tl)
		}
	}
}

func (b *builder) flush() {
	if !b.open {
		return
	}
	b.graph.PutStep(b.stepID, b.stepLine, b.body)
	b.open = false
	b.stepID = ""
	b.body = nil
	b.branched = false
}

func (b *builder) step(tl domain.TokenLine) {
	if len(tl.Tokens) < 2 {
		b.errorf(tl, domain.CodeBadArity, "Step needs an id")
		return
	}
	if len(tl.Tokens) > 2 {
		b.warnf(tl, domain.CodeBadArity, "extra tokens after Step %s ignored", tl.Tokens[1])
	}

	b.flush()

	id := tl.Tokens[1]
	if b.graph.HasStep(id) {
		b.warnf(tl, domain.CodeDuplicateStep, "step %s redefined, later definition wins", id)
	}
	b.graph.SetMain(id)
	b.stepID = id
	b.stepLine = tl.Line
	b.open = true
}

func (b *builder) speak(tl domain.TokenLine) {
	expr := make(domain.Expression, 0, len(tl.Tokens)-1)
	for _, tok := range tl.Tokens[1:] {
		switch {
		case tok == "+":
			continue
		case strings.HasPrefix(tok, "$"):
			name := tok[1:]
			if name == "" {
				b.errorf(tl, domain.CodeBadToken, "empty variable reference")
				continue
			}
			b.graph.DeclareVariable(name)
			expr = append(expr, domain.Variable(name))
		case isQuoted(tok):
			expr = append(expr, domain.Literal(tok[1:len(tok)-1]))
		default:
			b.errorf(tl, domain.CodeBadToken, "unexpected token %s in Speak", tok)
		}
	}
	b.append(tl, domain.Speak(expr))
}

func (b *builder) listen(tl domain.TokenLine) {
	if len(tl.Tokens) != 2 {
		b.errorf(tl, domain.CodeBadArity, "Listen takes exactly one timeout, got %d tokens", len(tl.Tokens))
		return
	}
	timeout, err := parseSeconds(tl.Tokens[1])
	if err != nil {
		b.errorf(tl, domain.CodeBadTimeout, "invalid Listen timeout %s: %v", tl.Tokens[1], err)
		return
	}
	b.append(tl, domain.Listen(timeout))
}

func (b *builder) branch(tl domain.TokenLine) {
	if len(tl.Tokens) != 3 {
		b.errorf(tl, domain.CodeBadArity, "Branch takes a keyword and a target, got %d tokens", len(tl.Tokens))
		return
	}
	if !isQuoted(tl.Tokens[1]) {
		b.errorf(tl, domain.CodeBadToken, "Branch keyword %s must be double-quoted", tl.Tokens[1])
		return
	}
	keyword := tl.Tokens[1][1 : len(tl.Tokens[1])-1]
	target := tl.Tokens[2]
	if keyword == "" {
		b.warnf(tl, domain.CodeEmptyKeyword, "empty Branch keyword matches every input")
	}

	if !b.branched {
		b.append(tl, domain.Branch(keyword, target))
		b.branched = true
	}
	b.graph.AddBranch(keyword, target, b.stepID)
}

func (b *builder) jump(tl domain.TokenLine) {
	if len(tl.Tokens) != 2 {
		b.errorf(tl, domain.CodeBadArity, "%s takes exactly one target, got %d tokens", tl.Kind(), len(tl.Tokens))
		return
	}
	if tl.Kind() == domain.KindSilence {
		b.append(tl, domain.Silence(tl.Tokens[1]))
		return
	}
	b.append(tl, domain.Default(tl.Tokens[1]))
}

func (b *builder) exit(tl domain.TokenLine) {
	if len(tl.Tokens) > 1 {
		b.warnf(tl, domain.CodeBadArity, "extra tokens after Exit ignored")
	}
	b.append(tl, domain.Exit())
}

func (b *builder) append(tl domain.TokenLine, in domain.Instruction) {
	in.Line = tl.Line
	b.body = append(b.body, in)
}

func (b *builder) errorf(tl domain.TokenLine, code domain.Code, format string, args ...any) {
	b.report(tl, domain.SeverityError, code, fmt.Sprintf(format, args...))
}

func (b *builder) warnf(tl domain.TokenLine, code domain.Code, format string, args ...any) {
	b.report(tl, domain.SeverityWarning, code, fmt.Sprintf(format, args...))
}

func (b *builder) report(tl domain.TokenLine, sev domain.Severity, code domain.Code, msg string) {
	d := domain.Diagnostic{
		Line:     tl.Line,
		Severity: sev,
		Code:     code,
		Message:  msg,
		Tokens:   append([]string(nil), tl.Tokens...),
	}
	b.diags = append(b.diags, d)

	level := slog.LevelWarn
	if sev == domain.SeverityError {
		level = slog.LevelError
	}
	b.cfg.logger.Log(context.Background(), level, msg, "line", tl.Line, "code", string(code), "tokens", tl.String())
}

func isQuoted(tok string) bool {
	return len(tok) >= 2 && tok[0] == '"' && tok[len(tok)-1] == '"'
}

// parseSeconds reads a non-negative, finite decimal number of seconds.
func parseSeconds(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, errors.New("must be a non-negative number of seconds")
	}
	if secs > float64(math.MaxInt64/int64(time.Second)) {
		return 0, errors.New("too large")
	}
	return time.Duration(secs * float64(time.Second)), nil
}
