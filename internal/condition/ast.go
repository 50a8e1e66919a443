package condition

// node is a tagged expression tree. The evaluator switches on the concrete type.
type node interface {
	position() int
}

type literalNode struct {
	pos   int
	value any // nil, bool, float64 or string
}

type variableNode struct {
	pos  int
	name string
}

type listNode struct {
	pos   int
	items []node
}

type memberNode struct {
	pos    int
	target node
	name   string
}

type callNode struct {
	pos  int
	name string
	args []node
}

// unaryNode covers "not" and arithmetic negation.
type unaryNode struct {
	pos     int
	op      string
	operand node
}

// logicalNode covers short-circuit "and" / "or".
type logicalNode struct {
	pos         int
	op          string
	left, right node
}

type compareNode struct {
	pos         int
	op          string // == != < <= > >= in notin
	left, right node
}

type arithNode struct {
	pos         int
	op          string // + - * /
	left, right node
}

func (n *literalNode) position() int  { return n.pos }
func (n *variableNode) position() int { return n.pos }
func (n *listNode) position() int     { return n.pos }
func (n *memberNode) position() int   { return n.pos }
func (n *callNode) position() int     { return n.pos }
func (n *unaryNode) position() int    { return n.pos }
func (n *logicalNode) position() int  { return n.pos }
func (n *compareNode) position() int  { return n.pos }
func (n *arithNode) position() int    { return n.pos }
