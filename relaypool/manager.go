// Package relaypool keeps a persistent pool of egress relays: scraped from
// listing sites or imported by hand, validated on a tiered schedule and
// served, best first, to the health-checked egress selector.
package relaypool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"statscrape/internal/egress"
	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/types"
	"statscrape/relaypool/model"
	"statscrape/relaypool/scraper"
	"statscrape/relaypool/storage"
)

const (
	// relay 因连续失败而被移除的阈值
	maxFailuresBeforeRemoval = 7

	// ManualImportSource marks relays added through ImportRelays.
	ManualImportSource = "manual-import"
)

// 定义分级间隔策略
var (
	// 成功验证后的下一次检查间隔，与 SuccessCount 对应
	successIntervals = []time.Duration{
		1 * time.Hour,
		12 * time.Hour,
		24 * time.Hour,  // 1d
		48 * time.Hour,  // 2d
		72 * time.Hour,  // 3d
		120 * time.Hour, // 5d
	}

	// 失败验证后的指数退避间隔，与 FailureCount 对应
	failureIntervals = []time.Duration{
		1 * time.Hour,
		12 * time.Hour,
		24 * time.Hour,
		48 * time.Hour,
		72 * time.Hour,
		120 * time.Hour,
	}
)

// Validator checks a batch of relays and updates their counters in place.
type Validator interface {
	Validate(ctx context.Context, relays []*model.Relay) []*model.Relay
}

// Manager 是 relay pool 模块的总控制器。
type Manager struct {
	cfg       types.RelayPoolConf
	storage   storage.Storage
	scrapers  []scraper.Scraper
	validator Validator
	relays    map[string]*model.Relay // 内存中的 relay 池
	mu        sync.RWMutex
	now       func() time.Time

	onChangeMu sync.RWMutex
	onChange   func()

	// 调度器与生命周期管理
	ctx               context.Context
	cancel            context.CancelFunc
	scrapeTicker      *time.Ticker
	healthCheckTicker *time.Ticker
	wg                sync.WaitGroup
	bg                sync.WaitGroup
}

// NewManager 创建并初始化 relay pool 管理器。
func NewManager(cfg types.RelayPoolConf, storage storage.Storage, validator Validator) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		storage:   storage,
		validator: validator,
		relays:    make(map[string]*model.Relay),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddScraper 添加一个抓取器到管理器。
func (m *Manager) AddScraper(s scraper.Scraper) {
	m.scrapers = append(m.scrapers, s)
}

// OnChange registers fn to run after every change to the pool.
func (m *Manager) OnChange(fn func()) {
	m.onChangeMu.Lock()
	m.onChange = fn
	m.onChangeMu.Unlock()
}

func (m *Manager) notify() {
	m.onChangeMu.RLock()
	fn := m.onChange
	m.onChangeMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Load reads the persisted pool into memory, replacing what is there.
func (m *Manager) Load() error {
	relays, err := m.storage.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.relays = relays
	m.mu.Unlock()
	return nil
}

// Start 启动管理器的所有后台任务（调度循环）。
func (m *Manager) Start() {
	l := logger.WithComponent("RelayPool/Manager")
	l.Info().Msg("Manager starting...")

	if err := m.Load(); err != nil {
		l.Error().Err(err).Msg("Failed to load relays from storage. Starting with an empty pool.")
	}

	scrapeInterval := time.Duration(m.cfg.ScrapeIntervalHours) * time.Hour
	if scrapeInterval <= 0 {
		scrapeInterval = 6 * time.Hour
	}
	healthCheckInterval := time.Duration(m.cfg.HealthCheckIntervalSeconds) * time.Second
	if healthCheckInterval <= 0 {
		healthCheckInterval = time.Minute
	}
	m.scrapeTicker = time.NewTicker(scrapeInterval)
	m.healthCheckTicker = time.NewTicker(healthCheckInterval)

	l.Info().
		Dur("scrape_interval", scrapeInterval).
		Dur("health_check_interval", healthCheckInterval).
		Int("scrapers", len(m.scrapers)).
		Msg("Schedulers initialized.")

	m.wg.Add(1)
	go m.schedulerLoop()

	m.background(func() { m.RunScrapeCycle(m.ctx) })
}

func (m *Manager) background(fn func()) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		fn()
	}()
}

// schedulerLoop 是核心的调度循环，监听 Ticker 和停止信号。
func (m *Manager) schedulerLoop() {
	defer m.wg.Done()
	l := logger.WithComponent("RelayPool/Manager")

	for {
		select {
		case <-m.scrapeTicker.C:
			l.Info().Msg("Scrape ticker triggered.")
			m.background(func() { m.RunScrapeCycle(m.ctx) })

		case <-m.healthCheckTicker.C:
			l.Debug().Msg("Health check ticker triggered.")
			m.background(func() { m.RunRevalidationCycle(m.ctx) })

		case <-m.ctx.Done():
			l.Info().Msg("Stop signal received. Shutting down schedulers.")
			m.scrapeTicker.Stop()
			m.healthCheckTicker.Stop()
			return
		}
	}
}

// RunScrapeCycle 执行一个完整的“抓取 -> 验证新 relay -> 存储”周期。
func (m *Manager) RunScrapeCycle(ctx context.Context) {
	l := logger.WithComponent("RelayPool/Manager")
	l.Info().Msg("Starting new scrape and validate cycle...")

	var wg sync.WaitGroup
	scrapedChan := make(chan []*model.Relay, len(m.scrapers))

	for _, s := range m.scrapers {
		wg.Add(1)
		go func(sc scraper.Scraper) {
			defer wg.Done()
			relays, err := sc.Scrape(ctx)
			if err != nil {
				l.Warn().Err(err).Str("source", sc.Name()).Msg("Scraper failed.")
			}
			if len(relays) > 0 {
				scrapedChan <- relays
			}
		}(s)
	}

	wg.Wait()
	close(scrapedChan)

	fresh := make([]*model.Relay, 0)
	seen := make(map[string]struct{})
	m.mu.RLock()
	for relays := range scrapedChan {
		for _, r := range relays {
			if _, exists := m.relays[r.ID]; exists {
				continue
			}
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			fresh = append(fresh, r)
		}
	}
	m.mu.RUnlock()

	if len(fresh) == 0 {
		l.Info().Msg("No new relays found to validate in this cycle.")
		m.save()
		return
	}

	l.Info().Int("count", len(fresh)).Msg("Found new relays. Starting validation...")
	validated := m.validator.Validate(ctx, fresh)
	if ctx.Err() != nil {
		l.Warn().Err(ctx.Err()).Msg("Scrape cycle cancelled during validation, discarding results.")
		return
	}

	verified := 0
	m.mu.Lock()
	for _, r := range validated {
		// Imported while we were validating; that copy owns its own state.
		if _, exists := m.relays[r.ID]; exists {
			continue
		}
		m.updateRelayState(r)
		m.relays[r.ID] = r
		if r.VerifiedProtocol != "" {
			verified++
		}
	}
	m.mu.Unlock()

	l.Info().Int("total_validated", len(validated)).Int("verified", verified).Msg("Validation finished.")
	m.save()
	m.notify()
	l.Info().Msg("Scrape and validate cycle finished.")
}

// RunRevalidationCycle 执行一个“筛选存量 relay -> 验证 -> 更新状态”的周期。
func (m *Manager) RunRevalidationCycle(ctx context.Context) {
	l := logger.WithComponent("RelayPool/Manager")
	l.Debug().Msg("Executing re-validation cycle...")

	// 1. 筛选出到期待验证的 relay
	now := m.now()
	due := make([]*model.Relay, 0)
	m.mu.RLock()
	for _, r := range m.relays {
		if !r.NextChecked.IsZero() && !r.NextChecked.After(now) {
			due = append(due, r)
		}
	}
	m.mu.RUnlock()

	if len(due) == 0 {
		l.Debug().Msg("No relays due for re-validation.")
		return
	}

	// 2. 排序并取出一批进行验证
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextChecked.Before(due[j].NextChecked)
	})
	totalDue := len(due)
	if batch := m.cfg.RevalidationBatchSize; batch > 0 && len(due) > batch {
		due = due[:batch]
	}

	l.Info().Int("batch_size", len(due)).Int("total_due", totalDue).Msg("Starting re-validation batch.")

	// 3. 验证
	m.validateAndMerge(ctx, m.copies(due))
}

// copies snapshots relays so the validator never writes shared state.
func (m *Manager) copies(relays []*model.Relay) []*model.Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Relay, 0, len(relays))
	for _, r := range relays {
		c := *r
		out = append(out, &c)
	}
	return out
}

// validateAndMerge validates the copies and writes the outcome back into the
// pool, evicting relays that failed too often.
func (m *Manager) validateAndMerge(ctx context.Context, batch []*model.Relay) {
	l := logger.WithComponent("RelayPool/Manager")
	validated := m.validator.Validate(ctx, batch)
	if ctx.Err() != nil {
		// An interrupted batch reports every relay as failed; drop it.
		return
	}

	m.mu.Lock()
	removed := 0
	for _, r := range validated {
		current, ok := m.relays[r.ID]
		if !ok {
			// deleted while being validated
			continue
		}
		current.VerifiedProtocol = r.VerifiedProtocol
		current.Latency = r.Latency
		current.LastChecked = r.LastChecked
		current.FailureCount = r.FailureCount
		current.SuccessCount = r.SuccessCount
		m.updateRelayState(current)

		// 检查是否需要淘汰
		if current.FailureCount >= maxFailuresBeforeRemoval {
			delete(m.relays, current.ID)
			removed++
			l.Info().Str("relay_id", current.ID).Int("failures", current.FailureCount).Msg("Relay removed from pool due to excessive failures.")
		}
	}
	m.mu.Unlock()

	if len(validated) > 0 {
		m.save()
		m.notify()
	}
	l.Debug().Int("validated", len(validated)).Int("removed", removed).Msg("Validation results merged.")
}

// updateRelayState 是动态间隔算法的核心实现。
// 注意：此函数必须在写锁 (m.mu.Lock) 保护下调用。
func (m *Manager) updateRelayState(r *model.Relay) {
	now := m.now()
	if r.VerifiedProtocol != "" {
		r.NextChecked = now.Add(tier(successIntervals, r.SuccessCount))
	} else {
		r.NextChecked = now.Add(tier(failureIntervals, r.FailureCount))
	}
}

func tier(intervals []time.Duration, count int) time.Duration {
	i := count - 1
	if i < 0 {
		i = 0
	}
	if i >= len(intervals) {
		i = len(intervals) - 1
	}
	return intervals[i]
}

func (m *Manager) save() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.storage.Save(m.relays); err != nil {
		l := logger.WithComponent("RelayPool/Manager")
		l.Error().Err(err).Msg("Failed to save relays to storage.")
	}
}

// Wait blocks until background validations started by ImportRelays or
// TriggerValidation have been merged and saved.
func (m *Manager) Wait() {
	m.bg.Wait()
}

// Stop 优雅地停止管理器的所有后台任务。
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.bg.Wait()
	m.save()
	l := logger.WithComponent("RelayPool/Manager")
	l.Info().Msg("RelayPool Manager gracefully stopped.")
}

// HealthyRelays returns the relays whose last check passed, most successful
// first and then fastest. It implements egress.RelaySource.
func (m *Manager) HealthyRelays() []egress.Path {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*model.Relay, 0)
	for _, r := range m.relays {
		if r.Healthy() {
			candidates = append(candidates, r)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SuccessCount != candidates[j].SuccessCount {
			return candidates[i].SuccessCount > candidates[j].SuccessCount
		}
		if candidates[i].Latency != candidates[j].Latency {
			return candidates[i].Latency < candidates[j].Latency
		}
		return candidates[i].ID < candidates[j].ID
	})

	paths := make([]egress.Path, 0, len(candidates))
	for _, r := range candidates {
		paths = append(paths, egress.Path{Endpoint: r.Endpoint(), Scheme: r.VerifiedProtocol})
	}
	return paths
}

// ImportRelays adds host:port entries to the pool and validates the new ones
// in the background. It returns how many were added.
func (m *Manager) ImportRelays(entries []string, protocol string) (int, error) {
	l := logger.WithComponent("RelayPool/Manager").With().Str("batch_id", uuid.NewString()).Logger()
	l.Info().Int("count", len(entries)).Str("protocol", protocol).Msg("Starting manual relay import.")

	switch protocol {
	case "", "http", "https":
		protocol = "http"
	case "socks5":
	default:
		return 0, fmt.Errorf("unsupported protocol %q", protocol)
	}

	added := make([]*model.Relay, 0)
	m.mu.Lock()
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		host, port, err := model.ParseEndpoint(entry)
		if err != nil {
			l.Warn().Str("relay", entry).Err(err).Msg("Invalid relay format, skipping.")
			continue
		}
		r := model.NewRelay(host, port, protocol, ManualImportSource)
		if _, exists := m.relays[r.ID]; exists {
			l.Debug().Str("relay_id", r.ID).Msg("Relay already exists, skipping import.")
			continue
		}
		r.LastChecked, r.NextChecked = m.now(), m.now()
		m.relays[r.ID] = r
		added = append(added, r)
	}
	m.mu.Unlock()

	if len(added) == 0 {
		l.Info().Msg("No new relays were added from the import list.")
		return 0, nil
	}

	l.Info().Int("count", len(added)).Msg("New relays added to the pool. Triggering background validation.")
	m.notify()

	batch := m.copies(added)
	m.background(func() { m.validateAndMerge(m.ctx, batch) })
	return len(added), nil
}

// AllRelays returns a snapshot of the pool, most recently checked first.
func (m *Manager) AllRelays() []model.Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]model.Relay, 0, len(m.relays))
	for _, r := range m.relays {
		all = append(all, *r)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].LastChecked.Equal(all[j].LastChecked) {
			return all[i].LastChecked.After(all[j].LastChecked)
		}
		return all[i].ID < all[j].ID
	})
	return all
}

// TriggerValidation schedules an immediate background validation of ids.
func (m *Manager) TriggerValidation(ids []string) error {
	l := logger.WithComponent("RelayPool/Manager")
	l.Info().Int("count", len(ids)).Msg("Manual validation triggered for specific relays.")

	batch := make([]*model.Relay, 0, len(ids))
	m.mu.RLock()
	for _, id := range ids {
		if r, ok := m.relays[id]; ok {
			batch = append(batch, r)
		}
	}
	m.mu.RUnlock()

	if len(batch) == 0 {
		return fmt.Errorf("no matching relays found for the given IDs")
	}

	batch = m.copies(batch)
	m.background(func() { m.validateAndMerge(m.ctx, batch) })
	return nil
}

// DeleteRelays removes relays by id and persists the pool.
func (m *Manager) DeleteRelays(ids []string) (int, error) {
	l := logger.WithComponent("RelayPool/Manager")

	m.mu.Lock()
	deleted := 0
	for _, id := range ids {
		if _, exists := m.relays[id]; exists {
			delete(m.relays, id)
			deleted++
		}
	}
	relays := m.relays
	err := m.storage.Save(relays)
	m.mu.Unlock()

	l.Info().Int("requested", len(ids)).Int("deleted_count", deleted).Msg("Deletion complete.")
	if deleted > 0 {
		m.notify()
	}
	return deleted, err
}
