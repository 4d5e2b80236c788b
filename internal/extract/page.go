// Package extract is the library per-entity parsers build on: page validity
// assertion, single and list text extraction, and pagination detection.
package extract

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"statscrape/internal/fetch"
	"statscrape/internal/page"
	"statscrape/internal/shared/scrapeerr"
	"statscrape/internal/textutil"
)

// Getter is the part of fetch.Fetcher a page needs.
type Getter interface {
	Fetch(ctx context.Context, target fetch.Target, override string) (*fetch.Response, error)
}

// Page is a fetched, parsed page plus the node expressions are evaluated
// against (the document root unless the page came from Rows).
type Page struct {
	URL  string
	doc  *page.Document
	node *html.Node
}

// New wraps an already parsed document.
func New(url string, doc *page.Document) *Page {
	return &Page{URL: url, doc: doc, node: doc.Root()}
}

// Load fetches rawURL and parses it. A failed fetch never yields a page.
func Load(ctx context.Context, g Getter, rawURL string) (*Page, error) {
	return LoadWithOverride(ctx, g, rawURL, "")
}

// LoadWithOverride fetches override instead of rawURL when it is non-empty.
// The page keeps rawURL as its identity for error details.
func LoadWithOverride(ctx context.Context, g Getter, rawURL, override string) (*Page, error) {
	target, err := fetch.NewTarget(rawURL)
	if err != nil {
		return nil, scrapeerr.Transport(rawURL, err)
	}
	resp, err := g.Fetch(ctx, target, override)
	if err != nil {
		return nil, err
	}
	doc, err := page.Parse(resp.Body)
	if err != nil {
		return nil, scrapeerr.Transport(rawURL, err)
	}
	return New(rawURL, doc), nil
}

// Document returns the underlying parsed document.
func (p *Page) Document() *page.Document {
	return p.doc
}

func (p *Page) query(expr string) (page.Result, error) {
	return p.doc.QueryFrom(p.node, expr)
}

// Rows returns one page per node matched by expr, each scoped to its node so
// relative expressions resolve against that row.
func (p *Page) Rows(expr string) ([]*Page, error) {
	res, err := p.query(expr)
	if err != nil {
		return nil, err
	}
	rows := make([]*Page, 0, res.Len())
	for _, n := range res.Nodes() {
		rows = append(rows, &Page{URL: p.URL, doc: p.doc, node: n})
	}
	return rows, nil
}

// AssertFound fails with NotFound unless expr yields a value. Callers use it
// first to reject pages that are not the expected entity.
func (p *Page) AssertFound(expr string) error {
	_, ok, err := p.SingleText(expr, Default())
	if err != nil {
		return err
	}
	if !ok {
		return scrapeerr.InvalidPage(p.URL)
	}
	return nil
}

// ListText returns every match trimmed. With removeEmpty, blank matches are
// dropped. The result is never nil.
func (p *Page) ListText(expr string, removeEmpty bool) ([]string, error) {
	res, err := p.query(expr)
	if err != nil {
		return []string{}, err
	}
	return textutil.TrimAll(res.Texts(), removeEmpty), nil
}

// SingleText returns one value from the trimmed, non-blank matches of expr as
// chosen by sel. ok is false when there is no value.
func (p *Page) SingleText(expr string, sel Selection) (value string, ok bool, err error) {
	res, err := p.query(expr)
	if err != nil {
		return "", false, err
	}
	if res.Empty() {
		return "", false, nil
	}
	values := textutil.TrimAll(res.Texts(), true)

	switch sel.mode {
	case modeAt:
		i, inRange := resolveIndex(sel.index, len(values))
		if !inRange {
			return "", false, scrapeerr.Index(expr, sel.index, len(values))
		}
		return values[i], true, nil
	case modeSlice:
		lo, hi := sel.bounds(len(values))
		values = values[lo:hi]
	}

	if sel.join {
		joined := strings.Join(values, sel.sep)
		return joined, joined != "", nil
	}

	i, inRange := resolveIndex(sel.index, len(values))
	if !inRange {
		return "", false, nil
	}
	return values[i], true, nil
}
