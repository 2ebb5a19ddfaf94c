package calendar

import (
	"time"

	"campusnexus/internal/service/promotion/domain"
)

// DefaultUpcomingWindowDays 是"即将开始"事件的默认观察窗口。
const DefaultUpcomingWindowDays = 7

// Context 是某一时刻的日历上下文，一次排序请求内所有候选共享同一份。
type Context struct {
	Today          time.Time
	ActiveEvents   []domain.CampusEvent
	UpcomingEvents []domain.CampusEvent
	CurrentSeason  *domain.SeasonalPattern
	CatalogVersion string
}

// DaysUntil 返回事件开始日距今天的天数。
func (c Context) DaysUntil(event domain.CampusEvent) int {
	return daysBetween(c.Today, CivilDate(event.Start))
}

// Provider 基于静态目录计算日历上下文，是 now 和目录的纯函数。
type Provider struct {
	catalog            *Catalog
	upcomingWindowDays int
}

// NewProvider 创建一个日历上下文提供者，windowDays <= 0 时使用默认的 7 天。
func NewProvider(catalog *Catalog, windowDays int) *Provider {
	if windowDays <= 0 {
		windowDays = DefaultUpcomingWindowDays
	}
	return &Provider{catalog: catalog, upcomingWindowDays: windowDays}
}

// GetContext 返回 now 所在日期的活跃事件、即将开始的事件和当前季节模式。
// 比较只看日期，忽略时分秒。
func (p *Provider) GetContext(now time.Time) Context {
	today := CivilDate(now)
	ctx := Context{Today: today}
	if p.catalog == nil {
		return ctx
	}
	ctx.CatalogVersion = p.catalog.Version

	for _, event := range p.catalog.Events {
		start, end := CivilDate(event.Start), CivilDate(event.End)
		if !today.Before(start) && !today.After(end) {
			ctx.ActiveEvents = append(ctx.ActiveEvents, event)
			continue
		}
		if d := daysBetween(today, start); d > 0 && d <= p.upcomingWindowDays {
			ctx.UpcomingEvents = append(ctx.UpcomingEvents, event)
		}
	}

	// 多个模式覆盖同一月份时，按声明顺序取第一个
	for i := range p.catalog.Seasons {
		if p.catalog.Seasons[i].Covers(today.Month()) {
			season := p.catalog.Seasons[i]
			ctx.CurrentSeason = &season
			break
		}
	}
	return ctx
}

// CivilDate 取 t 在其自身时区下的年月日，归一到 UTC 零点。
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
