package history

import (
	"context"
	"fmt"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
)

// DefaultPageSize 每页条数
const DefaultPageSize = 20

// PageFunc 拉取一页历史数据
type PageFunc func(ctx context.Context, q models.HistoryQuery) (*models.HistoryPage, error)

// Pager 体征历史分页加载
// 切换时间窗时从第 1 页重新开始；返回条数少于页大小即视为没有更多数据；汇总取第 1 页
type Pager struct {
	fetch    PageFunc
	period   models.HistoryPeriod
	pageSize int

	nextPage int
	hasMore  bool
	readings []models.HistoryReading
	summary  *models.HistorySummary
}

// NewPager 创建分页器
func NewPager(fetch PageFunc, period models.HistoryPeriod, pageSize int) (*Pager, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("invalid history period %q", period)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	p := &Pager{fetch: fetch, period: period, pageSize: pageSize}
	p.Reset()
	return p, nil
}

// Reset 回到第 1 页并清空已加载数据
func (p *Pager) Reset() {
	p.nextPage = 1
	p.hasMore = true
	p.readings = nil
	p.summary = nil
}

// SetPeriod 切换时间窗
func (p *Pager) SetPeriod(period models.HistoryPeriod) error {
	if !period.Valid() {
		return fmt.Errorf("invalid history period %q", period)
	}
	p.period = period
	p.Reset()
	return nil
}

// Period 当前时间窗
func (p *Pager) Period() models.HistoryPeriod { return p.period }

// HasMore 是否还有下一页
func (p *Pager) HasMore() bool { return p.hasMore }

// Readings 已加载的全部读数
func (p *Pager) Readings() []models.HistoryReading { return p.readings }

// Summary 第 1 页返回的汇总
func (p *Pager) Summary() *models.HistorySummary { return p.summary }

// Next 加载下一页，返回本页读数；没有更多数据时返回空
func (p *Pager) Next(ctx context.Context) ([]models.HistoryReading, error) {
	if !p.hasMore {
		return nil, nil
	}

	page, err := p.fetch(ctx, models.HistoryQuery{
		Period: p.period,
		Page:   p.nextPage,
		Limit:  p.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history page %d: %w", p.nextPage, err)
	}

	var readings []models.HistoryReading
	if page != nil {
		readings = page.Readings
		if p.nextPage == 1 {
			p.summary = page.Summary
		}
	}

	p.readings = append(p.readings, readings...)
	if len(readings) < p.pageSize {
		p.hasMore = false
	}
	p.nextPage++
	return readings, nil
}

// LoadAll 连续加载直到没有更多数据或达到 maxPages（<=0 不限制）
func (p *Pager) LoadAll(ctx context.Context, maxPages int) ([]models.HistoryReading, error) {
	for pages := 0; p.hasMore && (maxPages <= 0 || pages < maxPages); pages++ {
		if _, err := p.Next(ctx); err != nil {
			return p.readings, err
		}
	}
	return p.readings, nil
}
