package condition

import (
	"fmt"
)

// Logger defines the logging interface used by the Evaluator.
// This matches the interface used by other trackside packages.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// maxDepth bounds recursion so a pathological expression cannot exhaust the stack.
const maxDepth = 256

// Evaluator runs compiled guards against a Context.
// It is stateless apart from its logger and safe for concurrent use.
type Evaluator struct {
	logger  Logger
	helpers map[string]helper
}

// NewEvaluator creates an evaluator with the standard helper library.
func NewEvaluator(logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{logger: logger, helpers: standardHelpers()}
}

// SetLogger replaces the diagnostic logger.
func (e *Evaluator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// Evaluate returns the truth of expr. Any failure is logged and yields false.
func (e *Evaluator) Evaluate(expr *Expression, ctx Context) bool {
	ok, err := e.Check(expr, ctx)
	if err != nil {
		e.logger.Warn("guard evaluation failed",
			"expression", expr.String(),
			"error", err,
		)
		return false
	}
	return ok
}

// EvaluateString compiles and evaluates src. Syntax errors are logged and yield false.
func (e *Evaluator) EvaluateString(src string, ctx Context) bool {
	expr, err := Compile(src)
	if err != nil {
		e.logger.Warn("guard compilation failed",
			"expression", src,
			"error", err,
		)
		return false
	}
	return e.Evaluate(expr, ctx)
}

// Check evaluates expr and returns the underlying error instead of logging it.
// An empty expression is true.
func (e *Evaluator) Check(expr *Expression, ctx Context) (result bool, err error) {
	if expr.Empty() {
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			result = false
			err = evalError(ErrType, "panic: %v", r)
		}
	}()

	run := &evaluation{ev: e, ctx: ctx, env: newHelperEnv(ctx)}
	v, err := run.eval(expr.root, 0)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// evaluation carries per-call state so the Evaluator itself stays immutable.
type evaluation struct {
	ev  *Evaluator
	ctx Context
	env *helperEnv
}

func (r *evaluation) eval(n node, depth int) (any, error) {
	if depth > maxDepth {
		return nil, evalError(ErrType, "expression nested deeper than %d", maxDepth)
	}
	depth++

	switch n := n.(type) {
	case *literalNode:
		return n.value, nil

	case *variableNode:
		v, ok := r.ctx.lookup(n.name)
		if !ok {
			return nil, evalError(ErrUnknownVariable, "%q", n.name)
		}
		return v, nil

	case *listNode:
		out := make([]any, len(n.items))
		for i, item := range n.items {
			v, err := r.eval(item, depth)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *memberNode:
		target, err := r.eval(n.target, depth)
		if err != nil {
			return nil, err
		}
		attrs, ok := normalize(target).(map[string]any)
		if !ok {
			return nil, evalError(ErrType, "cannot read .%s of %s", n.name, typeName(target))
		}
		return normalize(attrs[n.name]), nil

	case *callNode:
		h, ok := r.ev.helpers[n.name]
		if !ok {
			return nil, evalError(ErrUnknownFunction, "%s()", n.name)
		}
		if len(n.args) < h.minArgs || len(n.args) > h.maxArgs {
			return nil, evalError(ErrArity, "%s() takes %s, got %d", n.name, h.arity(), len(n.args))
		}
		args := make([]any, len(n.args))
		for i, arg := range n.args {
			v, err := r.eval(arg, depth)
			if err != nil {
				return nil, err
			}
			args[i] = normalize(v)
		}
		return h.fn(r.env, n.name, args)

	case *unaryNode:
		v, err := r.eval(n.operand, depth)
		if err != nil {
			return nil, err
		}
		if n.op == "not" {
			return !truthy(v), nil
		}
		num, ok := normalize(v).(float64)
		if !ok {
			return nil, evalError(ErrType, "cannot negate %s", typeName(v))
		}
		return -num, nil

	case *logicalNode:
		left, err := r.eval(n.left, depth)
		if err != nil {
			return nil, err
		}
		if n.op == "and" && !truthy(left) {
			return false, nil
		}
		if n.op == "or" && truthy(left) {
			return true, nil
		}
		right, err := r.eval(n.right, depth)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil

	case *compareNode:
		left, err := r.eval(n.left, depth)
		if err != nil {
			return nil, err
		}
		right, err := r.eval(n.right, depth)
		if err != nil {
			return nil, err
		}
		return compare(n.op, left, right)

	case *arithNode:
		left, err := r.eval(n.left, depth)
		if err != nil {
			return nil, err
		}
		right, err := r.eval(n.right, depth)
		if err != nil {
			return nil, err
		}
		return arith(n.op, left, right)
	}

	return nil, evalError(ErrType, "unsupported node %T", n)
}

func compare(op string, left, right any) (any, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "in":
		return contains(right, left)
	case "notin":
		found, err := contains(right, left)
		return !found, err
	}

	cmp, err := order(op, left, right)
	if err != nil {
		return nil, err
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("%w: unknown comparison %s", ErrEvaluation, op)
}
