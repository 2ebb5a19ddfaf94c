package application

import (
	"strconv"
	"strings"
	"time"

	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/engine"
)

const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"
)

// RecommendRequest 是获取推荐的请求参数
type RecommendRequest struct {
	Goal   string
	TopN   int
	Source string
}

// RecommendResponse 是推荐接口的响应体
type RecommendResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Cached bool   `json:"cached"`
	engine.Result
}

// PublishResponse 是手动发布指标的响应体
type PublishResponse struct {
	RunID     string `json:"run_id"`
	Published int    `json:"published"`
	Rejected  int    `json:"rejected"`
}

// EventDTO 是日历事件的对外表示
type EventDTO struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Categories []string `json:"categories"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Impact     string   `json:"impact"`
	Behavior   string   `json:"behavior,omitempty"`
	DaysUntil  int      `json:"days_until"`
}

// SeasonDTO 是季节模式的对外表示
type SeasonDTO struct {
	Name             string   `json:"name"`
	Months           []int    `json:"months"`
	OrderIncreasePct float64  `json:"order_increase_pct"`
	PeakDays         []string `json:"peak_days"`
	Categories       []string `json:"categories"`
}

// CalendarContextResponse 是日历上下文接口的响应体
type CalendarContextResponse struct {
	Date           string     `json:"date"`
	CatalogVersion string     `json:"catalog_version"`
	ActiveEvents   []EventDTO `json:"active_events"`
	UpcomingEvents []EventDTO `json:"upcoming_events"`
	CurrentSeason  *SeasonDTO `json:"current_season"`
}

// RecommendationKey 描述一次推荐结果的全部输入，任何一项变化都会得到新的缓存键。
type RecommendationKey struct {
	Goal           domain.CampaignGoal
	Source         domain.RecordSource
	TopN           int
	Date           string
	CatalogVersion string
	Config         string // 评分策略摘要
	Fingerprint    string
}

func (k RecommendationKey) String() string {
	return strings.Join([]string{
		string(k.Goal),
		string(k.Source),
		strconv.Itoa(k.TopN),
		k.Date,
		k.CatalogVersion,
		k.Config,
		k.Fingerprint,
	}, ":")
}

func toCalendarResponse(c calendar.Context) *CalendarContextResponse {
	resp := &CalendarContextResponse{
		Date:           c.Today.Format(time.DateOnly),
		CatalogVersion: c.CatalogVersion,
		ActiveEvents:   make([]EventDTO, 0, len(c.ActiveEvents)),
		UpcomingEvents: make([]EventDTO, 0, len(c.UpcomingEvents)),
	}
	for _, e := range c.ActiveEvents {
		resp.ActiveEvents = append(resp.ActiveEvents, toEventDTO(e, 0))
	}
	for _, e := range c.UpcomingEvents {
		resp.UpcomingEvents = append(resp.UpcomingEvents, toEventDTO(e, c.DaysUntil(e)))
	}
	if s := c.CurrentSeason; s != nil {
		season := &SeasonDTO{
			Name:             s.Name,
			OrderIncreasePct: s.OrderIncreasePct,
			Categories:       categoryStrings(s.Categories),
		}
		for _, m := range s.Months {
			season.Months = append(season.Months, int(m))
		}
		for _, d := range s.PeakDays {
			season.PeakDays = append(season.PeakDays, d.String())
		}
		resp.CurrentSeason = season
	}
	return resp
}

func toEventDTO(e domain.CampusEvent, daysUntil int) EventDTO {
	return EventDTO{
		ID:         e.ID,
		Name:       e.Name,
		Kind:       string(e.Kind),
		Categories: categoryStrings(e.Categories),
		Start:      e.Start.Format(time.DateOnly),
		End:        e.End.Format(time.DateOnly),
		Impact:     string(e.Impact),
		Behavior:   e.Behavior,
		DaysUntil:  daysUntil,
	}
}

func categoryStrings(cs []domain.Category) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}
