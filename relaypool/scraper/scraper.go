package scraper

import (
	"context"

	"statscrape/relaypool/model"
)

// Scraper 接口定义了从 relay 列表来源抓取 relay 信息的行为。
type Scraper interface {
	// Scrape 执行抓取操作，并返回一个 Relay 切片。
	// 实现者应只负责抓取和初步解析，不进行验证。
	Scrape(ctx context.Context) ([]*model.Relay, error)

	// Name 返回抓取器的名称，用于日志记录。
	Name() string
}
