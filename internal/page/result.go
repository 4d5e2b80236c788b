package page

import "golang.org/x/net/html"

// Item is one match. Node is nil for scalar results.
type Item struct {
	Node *html.Node
	Text string
}

// Result is the outcome of one query: empty, a node set, or a single scalar
// (string, number or boolean expressions).
type Result struct {
	Items    []Item
	isScalar bool
}

func scalar(text string) Result {
	return Result{Items: []Item{{Text: text}}, isScalar: true}
}

// Empty reports a result with no matches (or a falsy scalar).
func (r Result) Empty() bool {
	return len(r.Items) == 0
}

// Scalar reports whether the expression produced a single non-node value.
func (r Result) Scalar() bool {
	return r.isScalar
}

// Len returns the number of matches.
func (r Result) Len() int {
	return len(r.Items)
}

// Texts returns the raw (untrimmed) text value of every match.
func (r Result) Texts() []string {
	out := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, it.Text)
	}
	return out
}

// Nodes returns the matched nodes, skipping scalar items.
func (r Result) Nodes() []*html.Node {
	out := make([]*html.Node, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Node != nil {
			out = append(out, it.Node)
		}
	}
	return out
}
