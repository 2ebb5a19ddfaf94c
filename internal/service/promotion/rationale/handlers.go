package rationale

import (
	"fmt"
	"strconv"
	"strings"

	"campusnexus/internal/service/promotion/domain"
)

// PerformanceHandler 陈述记录在目标指标上的名次，任何已排序记录都会命中。
type PerformanceHandler struct {
	NextHandler
}

func (h *PerformanceHandler) Handle(req *Request) {
	c := req.Candidate
	line := fmt.Sprintf("Ranks #%d by %s", c.Rank, c.Goal.Label())
	if c.DisplayValue != "" {
		line += " (" + c.DisplayValue + ")"
	}
	req.add(line)
	h.executeNext(req)
}

// EventHandler 引用第一个与记录分类匹配的校园事件，活跃事件优先于即将开始的事件。
// 最多引用一个事件。
type EventHandler struct {
	NextHandler
}

func (h *EventHandler) Handle(req *Request) {
	category := req.Candidate.Record.Category
	if line, ok := firstEventLine("Currently active", req.Calendar.ActiveEvents, category); ok {
		req.add(line)
	} else if line, ok := firstEventLine("Starting soon", req.Calendar.UpcomingEvents, category); ok {
		req.add(line)
	}
	h.executeNext(req)
}

func firstEventLine(prefix string, events []domain.CampusEvent, category domain.Category) (string, bool) {
	for _, event := range events {
		if !domain.HasCategory(event.Categories, category) {
			continue
		}
		if event.Behavior == "" {
			return fmt.Sprintf("%s: %s", prefix, event.Name), true
		}
		return fmt.Sprintf("%s: %s — %s", prefix, event.Name, event.Behavior), true
	}
	return "", false
}

// SeasonHandler 在当前季节模式与记录分类匹配时引用季节规律。
type SeasonHandler struct {
	NextHandler
}

func (h *SeasonHandler) Handle(req *Request) {
	season := req.Calendar.CurrentSeason
	if season != nil && domain.HasCategory(season.Categories, req.Candidate.Record.Category) {
		pct := strconv.FormatFloat(season.OrderIncreasePct, 'f', -1, 64)
		line := fmt.Sprintf("%s: orders typically rise %s%%", season.Name, pct)
		if season.OrderIncreasePct < 0 {
			line = fmt.Sprintf("%s: orders typically dip %s%%", season.Name, strings.TrimPrefix(pct, "-"))
		}
		if len(season.PeakDays) > 0 {
			days := season.PeakDays
			if len(days) > 2 {
				days = days[:2]
			}
			names := make([]string, 0, len(days))
			for _, d := range days {
				names = append(names, d.String())
			}
			line += ", peaking on " + strings.Join(names, " and ")
		}
		req.add(line)
	}
	h.executeNext(req)
}

// HeuristicHandler 依次评估目录中的分类启发式规则，每条规则至多贡献一句话。
// 规则的事实数据是记录本身和某个活跃事件。
type HeuristicHandler struct {
	NextHandler
}

func (h *HeuristicHandler) Handle(req *Request) {
	if req.Rules != nil {
		record := recordFact(req.Candidate.Record)
		for _, heuristic := range req.Heuristics {
			if req.full() {
				break
			}
			for _, event := range req.Calendar.ActiveEvents {
				ok, err := req.Rules.Evaluate(heuristic.When, domain.Fact{"record": record, "event": eventFact(event)})
				if err == nil && ok {
					req.add(heuristic.Message)
					break
				}
			}
		}
	}
	h.executeNext(req)
}

// DurationFitHandler 判断记录的有效天数是否能落在下一个事件开始之前的窗口内。
type DurationFitHandler struct {
	NextHandler
}

func (h *DurationFitHandler) Handle(req *Request) {
	record := req.Candidate.Record
	if record.HasFiniteDuration() && len(req.Calendar.UpcomingEvents) > 0 {
		event := req.Calendar.UpcomingEvents[0]
		daysUntil := req.Calendar.DaysUntil(event)
		if record.DurationDays <= daysUntil+req.slack {
			req.add(fmt.Sprintf("%d-day run lines up with %s, which starts in %s",
				record.DurationDays, event.Name, pluralDays(daysUntil)))
		}
	}
	h.executeNext(req)
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return strconv.Itoa(n) + " days"
}

func recordFact(r domain.PromotionRecord) map[string]any {
	orderTypes := make([]string, 0, len(r.OrderTypes))
	for _, t := range r.OrderTypes {
		orderTypes = append(orderTypes, string(t))
	}
	return map[string]any{
		"id":             r.ID,
		"source":         string(r.Source),
		"category":       string(r.Category),
		"discount_kind":  string(r.DiscountKind),
		"duration_days":  int64(r.DurationDays),
		"times_redeemed": int64(r.TimesRedeemed),
		"order_types":    orderTypes,
	}
}

func eventFact(e domain.CampusEvent) map[string]any {
	categories := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		categories = append(categories, string(c))
	}
	return map[string]any{
		"id":         e.ID,
		"name":       e.Name,
		"kind":       string(e.Kind),
		"impact":     string(e.Impact),
		"categories": categories,
	}
}
