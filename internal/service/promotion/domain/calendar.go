package domain

import "time"

// EventKind 描述校园事件的类型，分类启发式规则依赖它。
type EventKind string

const (
	EventKindOrientation EventKind = "orientation"
	EventKindExam        EventKind = "exam"
	EventKindFestival    EventKind = "festival"
	EventKindSports      EventKind = "sports"
	EventKindHoliday     EventKind = "holiday"
	EventKindOther       EventKind = "other"
)

// ImpactTier 是事件对订单量的影响等级。
type ImpactTier string

const (
	ImpactHigh   ImpactTier = "high"
	ImpactMedium ImpactTier = "medium"
	ImpactLow    ImpactTier = "low"
)

// CampusEvent 是人工维护的校园日历事件，评分期间只读。
// Start 和 End 只有日期部分有意义。
type CampusEvent struct {
	ID         string
	Name       string
	Kind       EventKind
	Categories []Category
	Start      time.Time
	End        time.Time
	Impact     ImpactTier
	Behavior   string
}

// SeasonalPattern 描述某几个月份的订单季节规律。
type SeasonalPattern struct {
	Name             string
	Months           []time.Month
	OrderIncreasePct float64
	PeakDays         []time.Weekday
	Categories       []Category
}

// Covers 判断该模式是否适用于指定月份。
func (p SeasonalPattern) Covers(m time.Month) bool {
	for _, month := range p.Months {
		if month == m {
			return true
		}
	}
	return false
}
