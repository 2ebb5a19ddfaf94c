// internal/service/promotion/domain/promotion_record.go
package domain

import (
	"fmt"
	"math"
	"time"
)

// DiscountKind 定义了优惠的计算方式。
type DiscountKind string

const (
	DiscountKindPercentage DiscountKind = "percentage" // 折扣
	DiscountKindFlat       DiscountKind = "flat"       // 立减
)

// Category 是促销的业务分类标签，用于与校园事件/季节模式做亲和度匹配。
type Category string

const (
	CategorySeasonal    Category = "seasonal"
	CategoryAcquisition Category = "acquisition"
	CategoryRetention   Category = "retention"
	CategoryClearance   Category = "clearance"
	CategoryEngagement  Category = "engagement"
)

// Categories 按声明顺序列出所有合法分类。
var Categories = []Category{
	CategorySeasonal,
	CategoryAcquisition,
	CategoryRetention,
	CategoryClearance,
	CategoryEngagement,
}

// Valid 判断分类是否属于固定集合。
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// RecordSource 区分已发放的优惠码和可复用的模板。
type RecordSource string

const (
	SourceCode     RecordSource = "code"
	SourceTemplate RecordSource = "template"
)

// OrderType 是优惠适用的订单类型，例如 food、store。
type OrderType string

// PromotionRecord 是引擎评分和排序的基本单元，覆盖优惠码和模板两种来源。
// 它是持久层提供的只读快照，引擎不会修改它。
type PromotionRecord struct {
	ID          string
	Source      RecordSource
	Code        string
	Name        string
	Description string
	Category    Category

	// --- 优惠形态 ---
	DiscountKind   DiscountKind
	Magnitude      float64 // 百分比 (0,100] 或立减金额 > 0
	MinOrderAmount float64 // 0 表示未设置
	MaxDiscount    float64 // 仅对百分比有意义，0 表示不封顶

	// --- 使用约束 ---
	MaxRedemptions int // 0 表示不限次数
	DurationDays   int // 0 表示长期有效
	OrderTypes     []OrderType

	// --- 观测计数 ---
	TimesRedeemed int

	// 预计算指标，nil 表示存储层没有提供，需要由指标计算器推导。
	ROIScore         *float64
	RedemptionRate   *float64
	RevenueGenerated *float64

	// --- 生命周期 ---
	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool
	ExpiresAt *time.Time
}

// DisplayName 返回用于展示的名字，模板优先使用 Name，优惠码使用 Code。
func (r PromotionRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Code
}

// HasRedemptionCap 表示记录是否设置了核销上限。
func (r PromotionRecord) HasRedemptionCap() bool {
	return r.MaxRedemptions > 0
}

// HasFiniteDuration 表示记录是否有有限的有效天数。
func (r PromotionRecord) HasFiniteDuration() bool {
	return r.DurationDays > 0
}

// HasActivity 判断记录是否有历史信号。从未投放过的记录不参与排序。
func (r PromotionRecord) HasActivity() bool {
	return r.TimesRedeemed > 0 || valueOf(r.ROIScore) > 0 || valueOf(r.RevenueGenerated) > 0
}

// Validate 检查优惠形态是否合法。核销上限与已核销次数的关系不在这里校验，
// 那属于持久层的权威数据。
func (r PromotionRecord) Validate() error {
	// NaN 和 Inf 能通过下面所有比较，必须先排除
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"magnitude", r.Magnitude},
		{"min order amount", r.MinOrderAmount},
		{"max discount", r.MaxDiscount},
		{"roi score", valueOf(r.ROIScore)},
		{"redemption rate", valueOf(r.RedemptionRate)},
		{"revenue generated", valueOf(r.RevenueGenerated)},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: record %s has non-finite %s", ErrMalformedRecord, r.ID, f.name)
		}
	}
	switch r.DiscountKind {
	case DiscountKindPercentage:
		if r.Magnitude <= 0 || r.Magnitude > 100 {
			return fmt.Errorf("%w: record %s percentage %.2f outside (0,100]", ErrMalformedRecord, r.ID, r.Magnitude)
		}
	case DiscountKindFlat:
		if r.Magnitude <= 0 {
			return fmt.Errorf("%w: record %s flat amount %.2f must be positive", ErrMalformedRecord, r.ID, r.Magnitude)
		}
	case "":
		return fmt.Errorf("%w: record %s has no discount kind", ErrMalformedRecord, r.ID)
	default:
		return fmt.Errorf("%w: record %s has unknown discount kind %q", ErrMalformedRecord, r.ID, r.DiscountKind)
	}
	if r.MinOrderAmount < 0 || r.MaxDiscount < 0 {
		return fmt.Errorf("%w: record %s has negative order bounds", ErrMalformedRecord, r.ID)
	}
	if r.TimesRedeemed < 0 || r.MaxRedemptions < 0 || r.DurationDays < 0 {
		return fmt.Errorf("%w: record %s has negative counters", ErrMalformedRecord, r.ID)
	}
	return nil
}

// HasCategory 是分类亲和度匹配的集合成员判断。
func HasCategory(set []Category, c Category) bool {
	for _, candidate := range set {
		if candidate == c {
			return true
		}
	}
	return false
}

// Float 用于构造可选的预计算指标。
func Float(v float64) *float64 {
	return &v
}

func valueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
