package extract

import (
	"strconv"
	"strings"

	"statscrape/internal/shared/scrapeerr"
)

// Pagination widgets on listing pages. Both expressions select the link href.
const (
	LastPageXPath   = "//li[contains(@class, 'list-item--icon-last-page')]//@href"
	ActivePageXPath = "//li[contains(@class, 'list-item--active')]//@href"
)

// LastPageNumber returns the last page of a paginated listing. It reads the
// "last page" link, then the active page link, each prefixed by base, and
// defaults to 1 when neither exists.
func (p *Page) LastPageNumber(base string) (int, error) {
	for _, expr := range []string{LastPageXPath, ActivePageXPath} {
		text, ok, err := p.SingleText(base+expr, Default())
		if err != nil {
			return 0, err
		}
		if ok {
			return ParsePageNumber(text)
		}
	}
	return 1, nil
}

// ParsePageNumber takes the segment after the last '=' and then after the
// last '/', so both "?page=3" and "/page/3" yield 3.
func ParsePageNumber(text string) (int, error) {
	last := text[strings.LastIndex(text, "=")+1:]
	last = last[strings.LastIndex(last, "/")+1:]
	n, err := strconv.Atoi(strings.TrimSpace(last))
	if err != nil {
		return 0, scrapeerr.Conversion(text, err)
	}
	return n, nil
}
