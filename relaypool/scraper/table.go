package scraper

import (
	"context"
	"strconv"
	"strings"

	"statscrape/internal/extract"
	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/types"
	"statscrape/relaypool/model"
)

const pagePlaceholder = "{page}"

// TableScraper reads relays from an HTML listing described by a RelaySource.
// Pages go through the same fetcher and extraction library as stats pages.
type TableScraper struct {
	src    *types.RelaySource
	getter extract.Getter
}

// NewTableScraper 创建一个新的 TableScraper 实例。
func NewTableScraper(src *types.RelaySource, getter extract.Getter) Scraper {
	return &TableScraper{src: src, getter: getter}
}

// Name 返回抓取器的名称。
func (s *TableScraper) Name() string {
	return s.src.Name
}

func (s *TableScraper) pageURL(n int) string {
	return strings.ReplaceAll(s.src.URL, pagePlaceholder, strconv.Itoa(n))
}

// Scrape fetches the first page, reads the page count from its pagination
// widget (capped by MaxPages) and then walks the remaining pages. Failures
// past the first page are logged and skipped.
func (s *TableScraper) Scrape(ctx context.Context) ([]*model.Relay, error) {
	l := logger.WithComponent("RelayPool/Scraper").With().Str("source", s.Name()).Logger()
	l.Info().Msg("Starting scrape...")

	first, err := extract.Load(ctx, s.getter, s.pageURL(1))
	if err != nil {
		return nil, err
	}

	pages := 1
	if strings.Contains(s.src.URL, pagePlaceholder) {
		last, err := first.LastPageNumber(s.src.PaginationBase)
		if err != nil {
			l.Warn().Err(err).Msg("Could not read page count, scraping the first page only.")
		} else {
			pages = last
		}
		if s.src.MaxPages > 0 && pages > s.src.MaxPages {
			pages = s.src.MaxPages
		}
	}

	relays, err := s.parse(first)
	if err != nil {
		return nil, err
	}

	for i := 2; i <= pages; i++ {
		if ctx.Err() != nil {
			return relays, ctx.Err()
		}
		url := s.pageURL(i)
		l.Debug().Str("url", url).Msg("Scraping page...")

		p, err := extract.Load(ctx, s.getter, url)
		if err != nil {
			l.Warn().Err(err).Str("url", url).Msg("Failed to fetch page.")
			continue
		}
		more, err := s.parse(p)
		if err != nil {
			l.Warn().Err(err).Str("url", url).Msg("Failed to parse page.")
			continue
		}
		relays = append(relays, more...)
	}

	l.Info().Int("count", len(relays)).Int("pages", pages).Msg("Scrape finished.")
	return relays, nil
}

func (s *TableScraper) parse(p *extract.Page) ([]*model.Relay, error) {
	rows, err := p.Rows(s.src.RowXPath)
	if err != nil {
		return nil, err
	}

	relays := make([]*model.Relay, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		host, ok, err := row.SingleText(s.src.HostXPath, extract.Default())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		portStr, ok, err := row.SingleText(s.src.PortXPath, extract.Default())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			continue
		}

		protocol, err := s.protocol(row)
		if err != nil {
			return nil, err
		}

		r := model.NewRelay(host, port, protocol, s.Name())
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		relays = append(relays, r)
	}
	return relays, nil
}

// protocol normalizes the row's protocol cell to "http", "https" or "socks5".
func (s *TableScraper) protocol(row *extract.Page) (string, error) {
	raw := s.src.Protocol
	if s.src.ProtocolXPath != "" {
		v, ok, err := row.SingleText(s.src.ProtocolXPath, extract.Default())
		if err != nil {
			return "", err
		}
		if ok {
			raw = v
		}
	}
	return normalizeProtocol(raw), nil
}

func normalizeProtocol(raw string) string {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "SOCKS"):
		return "socks5"
	case strings.Contains(upper, "HTTPS"):
		return "https"
	default:
		return "http"
	}
}
