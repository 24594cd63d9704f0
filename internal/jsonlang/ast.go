package jsonlang

// NodeType identifies the kind of an AST node.
type NodeType string

const (
	NodeObject   NodeType = "object"
	NodeArray    NodeType = "array"
	NodeProperty NodeType = "property"
	NodeString   NodeType = "string"
	NodeNumber   NodeType = "number"
	NodeBoolean  NodeType = "boolean"
	NodeNull     NodeType = "null"
)

// Node is a position-annotated JSON value. Offsets are byte offsets into
// the parsed text. Parent is a navigation pointer only; children are owned
// by their container.
type Node interface {
	Type() NodeType
	Offset() int
	Length() int
	Parent() Node
	Children() []Node

	// Value returns the plain Go value of the node: map[string]any,
	// []any, string, float64, bool or nil.
	Value() any

	setLength(int)
}

type baseNode struct {
	offset int
	length int
	parent Node
}

func (n *baseNode) Offset() int      { return n.offset }
func (n *baseNode) Length() int      { return n.length }
func (n *baseNode) Parent() Node     { return n.parent }
func (n *baseNode) setLength(l int)  { n.length = l }
func (n *baseNode) Children() []Node { return nil }

// ObjectNode is a JSON object.
type ObjectNode struct {
	baseNode
	Properties []*PropertyNode
}

func (n *ObjectNode) Type() NodeType { return NodeObject }

func (n *ObjectNode) Children() []Node {
	children := make([]Node, len(n.Properties))
	for i, p := range n.Properties {
		children[i] = p
	}
	return children
}

func (n *ObjectNode) Value() any {
	obj := make(map[string]any, len(n.Properties))
	for _, p := range n.Properties {
		if p.ValueNode != nil {
			obj[p.KeyNode.Content] = p.ValueNode.Value()
		} else {
			obj[p.KeyNode.Content] = nil
		}
	}
	return obj
}

// Property returns the last property named key, or nil.
func (n *ObjectNode) Property(key string) *PropertyNode {
	for i := len(n.Properties) - 1; i >= 0; i-- {
		if n.Properties[i].KeyNode.Content == key {
			return n.Properties[i]
		}
	}
	return nil
}

// ArrayNode is a JSON array.
type ArrayNode struct {
	baseNode
	Items []Node
}

func (n *ArrayNode) Type() NodeType   { return NodeArray }
func (n *ArrayNode) Children() []Node { return n.Items }

func (n *ArrayNode) Value() any {
	arr := make([]any, len(n.Items))
	for i, item := range n.Items {
		arr[i] = item.Value()
	}
	return arr
}

// PropertyNode is a key/value pair of an object. ValueNode is nil when the
// value is missing; ColonOffset is -1 when the colon is.
type PropertyNode struct {
	baseNode
	KeyNode     *StringNode
	ValueNode   Node
	ColonOffset int
}

func (n *PropertyNode) Type() NodeType { return NodeProperty }

func (n *PropertyNode) Children() []Node {
	if n.ValueNode != nil {
		return []Node{n.KeyNode, n.ValueNode}
	}
	return []Node{n.KeyNode}
}

func (n *PropertyNode) Value() any {
	if n.ValueNode == nil {
		return nil
	}
	return n.ValueNode.Value()
}

// StringNode is a string literal; Content holds the decoded text.
type StringNode struct {
	baseNode
	Content string
}

func (n *StringNode) Type() NodeType { return NodeString }
func (n *StringNode) Value() any     { return n.Content }

// NumberNode is a number literal. IsInteger is false when the literal has
// a fraction.
type NumberNode struct {
	baseNode
	Number    float64
	IsInteger bool
}

func (n *NumberNode) Type() NodeType { return NodeNumber }
func (n *NumberNode) Value() any     { return n.Number }

// BooleanNode is `true` or `false`.
type BooleanNode struct {
	baseNode
	Bool bool
}

func (n *BooleanNode) Type() NodeType { return NodeBoolean }
func (n *BooleanNode) Value() any     { return n.Bool }

// NullNode is `null`.
type NullNode struct {
	baseNode
}

func (n *NullNode) Type() NodeType { return NodeNull }
func (n *NullNode) Value() any     { return nil }

// End returns the offset just past node.
func End(node Node) int {
	return node.Offset() + node.Length()
}

// Contains reports whether offset lies inside node. With includeRightBound
// the offset just past the node counts as inside.
func Contains(node Node, offset int, includeRightBound bool) bool {
	return offset >= node.Offset() && offset < End(node) ||
		includeRightBound && offset == End(node)
}

// NodeValue returns the plain Go value of node, or nil for a nil node.
func NodeValue(node Node) any {
	if node == nil {
		return nil
	}
	return node.Value()
}

// NodePath returns the keys and indices that lead from the root to node.
// Elements are strings (object keys) or ints (array indices).
func NodePath(node Node) []any {
	parent := node.Parent()
	if parent == nil {
		return []any{}
	}
	path := NodePath(parent)
	switch p := parent.(type) {
	case *PropertyNode:
		path = append(path, p.KeyNode.Content)
	case *ArrayNode:
		for i, item := range p.Items {
			if item == node {
				path = append(path, i)
				break
			}
		}
	}
	return path
}
