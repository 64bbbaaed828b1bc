package axml

import "fmt"

type NodeKind int

const (
	DocumentNode NodeKind = iota
	ElementNode
	TextNode
)

// Namespace is a prefix binding declared on an element.
type Namespace struct {
	Prefix string
	Uri    string
}

// Node is one node of a tree built by TreeSink.
type Node struct {
	Kind NodeKind

	// Element name, prefix and namespace; empty for other kinds.
	Name         string
	Prefix       string
	NamespaceUri string
	Attrs        []Attribute
	Namespaces   []Namespace

	// Text content of TextNode.
	Text string

	Children []*Node
}

// QualifiedName returns prefix:name, or just the name without a prefix.
func (n *Node) QualifiedName() string {
	return qualifiedName(n.Name, n.Prefix)
}

// Attr returns the value of the first attribute with the given local name.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Elements returns the element children of n.
func (n *Node) Elements() []*Node {
	var res []*Node
	for _, c := range n.Children {
		if c.Kind == ElementNode {
			res = append(res, c)
		}
	}
	return res
}

// TreeSink is a Sink that builds the whole document in memory.
type TreeSink struct {
	doc       *Node
	stack     []*Node
	pendingNs []Namespace
}

// Document returns the document node, or nil before StartDocument.
func (t *TreeSink) Document() *Node {
	return t.doc
}

// Root returns the root element, or nil if there is none.
func (t *TreeSink) Root() *Node {
	if t.doc == nil {
		return nil
	}
	if els := t.doc.Elements(); len(els) != 0 {
		return els[0]
	}
	return nil
}

func (t *TreeSink) StartDocument() error {
	t.doc = &Node{Kind: DocumentNode}
	t.stack = append(t.stack[:0], t.doc)
	t.pendingNs = nil
	return nil
}

func (t *TreeSink) EndDocument() error {
	if len(t.stack) != 1 {
		return fmt.Errorf("document ended with %d unclosed elements", len(t.stack)-1)
	}
	return nil
}

func (t *TreeSink) StartPrefixMapping(prefix, uri string) error {
	t.pendingNs = append(t.pendingNs, Namespace{Prefix: prefix, Uri: uri})
	return nil
}

func (t *TreeSink) EndPrefixMapping(prefix, uri string) error {
	return nil
}

func (t *TreeSink) StartElement(localName string, attrs []Attribute, uri, prefix string) error {
	parent, err := t.top()
	if err != nil {
		return err
	}

	el := &Node{
		Kind:         ElementNode,
		Name:         localName,
		Prefix:       prefix,
		NamespaceUri: uri,
		Attrs:        attrs,
		Namespaces:   t.pendingNs,
	}
	t.pendingNs = nil

	parent.Children = append(parent.Children, el)
	t.stack = append(t.stack, el)
	return nil
}

func (t *TreeSink) EndElement(localName, uri, prefix string) error {
	if len(t.stack) < 2 {
		return fmt.Errorf("</%s> without an open element", qualifiedName(localName, prefix))
	}
	t.stack = t.stack[:len(t.stack)-1]
	return nil
}

func (t *TreeSink) Text(data string) error {
	parent, err := t.top()
	if err != nil {
		return err
	}
	parent.Children = append(parent.Children, &Node{Kind: TextNode, Text: data})
	return nil
}

func (t *TreeSink) top() (*Node, error) {
	if len(t.stack) == 0 {
		return nil, fmt.Errorf("event before the start of the document")
	}
	return t.stack[len(t.stack)-1], nil
}
