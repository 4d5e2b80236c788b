// Package page turns fetched markup into a tree that location-path (XPath)
// expressions can be evaluated against.
package page

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"statscrape/internal/shared/scrapeerr"
)

// Document is a parsed page. It is read-only after Parse.
type Document struct {
	gq   *goquery.Document
	root *html.Node
}

// Parse builds a document from raw markup. The HTML5 parser repairs unclosed
// tags and bad nesting, so malformed input still yields a best-effort tree;
// a blank payload yields a root-only document.
func Parse(body []byte) (*Document, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		root := &html.Node{Type: html.DocumentNode}
		return &Document{gq: goquery.NewDocumentFromNode(root), root: root}, nil
	}
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML document: %w", err)
	}
	return &Document{gq: gq, root: gq.Nodes[0]}, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Selection exposes the goquery view for CSS-selector collaborators.
func (d *Document) Selection() *goquery.Selection {
	return d.gq.Selection
}

// Query evaluates expr against the document root.
func (d *Document) Query(expr string) (Result, error) {
	return d.QueryFrom(d.root, expr)
}

// QueryFrom evaluates expr with n as the context node, so relative
// expressions ("td[1]/text()") resolve against n.
func (d *Document) QueryFrom(n *html.Node, expr string) (Result, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return Result{}, scrapeerr.Query(expr, err)
	}
	return evaluate(compiled, n), nil
}

func evaluate(expr *xpath.Expr, n *html.Node) Result {
	switch v := expr.Evaluate(htmlquery.CreateXPathNavigator(n)).(type) {
	case *xpath.NodeIterator:
		var items []Item
		for v.MoveNext() {
			nav, ok := v.Current().(*htmlquery.NodeNavigator)
			if !ok {
				continue
			}
			items = append(items, Item{Node: nav.Current(), Text: navText(nav)})
		}
		return Result{Items: items}
	case string:
		if v == "" {
			return Result{}
		}
		return scalar(v)
	case float64:
		if v == 0 || math.IsNaN(v) {
			return Result{}
		}
		return scalar(formatNumber(v))
	case bool:
		if !v {
			return Result{}
		}
		return scalar("true")
	}
	return Result{}
}

// navText is the text value of the current node: the attribute value for
// attributes, the data for text nodes and the inner text for elements.
func navText(nav *htmlquery.NodeNavigator) string {
	if nav.Current().Type == html.DocumentNode {
		return htmlquery.InnerText(nav.Current())
	}
	return nav.Value()
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
