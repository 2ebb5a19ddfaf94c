package rationale

import (
	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
)

const (
	// DefaultMaxLines 是每条推荐最多输出的理由数。
	DefaultMaxLines = 3
	// DefaultDurationSlackDays 是有效期匹配事件窗口时允许多出的天数。
	DefaultDurationSlackDays = 3
)

// Generator 为已排序的记录生成可读的推荐理由。
type Generator struct {
	rules    domain.RuleEngine
	maxLines int
	slack    int
}

// NewGenerator 创建理由生成器。rules 为 nil 时跳过分类启发式规则。
func NewGenerator(rules domain.RuleEngine, maxLines, durationSlackDays int) *Generator {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if durationSlackDays < 0 {
		durationSlackDays = DefaultDurationSlackDays
	}
	return &Generator{rules: rules, maxLines: maxLines, slack: durationSlackDays}
}

// Explain 按固定顺序执行五项检查，收集满 maxLines 条后截断，不按相关性重排。
func (g *Generator) Explain(c Candidate, cal calendar.Context, heuristics []calendar.Heuristic) []string {
	req := &Request{
		Candidate:  c,
		Calendar:   cal,
		Heuristics: heuristics,
		Rules:      g.rules,
		Lines:      make([]string, 0, g.maxLines),
		maxLines:   g.maxLines,
		slack:      g.slack,
	}
	buildChain().Handle(req)
	return req.Lines
}

// buildChain 负责构建和连接理由链中的所有环节。
func buildChain() Handler {
	head := new(PerformanceHandler)
	head.SetNext(new(EventHandler)).
		SetNext(new(SeasonHandler)).
		SetNext(new(HeuristicHandler)).
		SetNext(new(DurationFitHandler))
	return head
}
