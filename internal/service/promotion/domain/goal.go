package domain

import "fmt"

// CampaignGoal 是一次排序请求的优化目标，每次请求只允许一个。
type CampaignGoal string

const (
	GoalROI            CampaignGoal = "roi"
	GoalRedemptionRate CampaignGoal = "redemption_rate"
	GoalRevenue        CampaignGoal = "revenue"
)

// ParseCampaignGoal 解析外部传入的目标字符串。
func ParseCampaignGoal(s string) (CampaignGoal, error) {
	switch g := CampaignGoal(s); g {
	case GoalROI, GoalRedemptionRate, GoalRevenue:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGoal, s)
	}
}

// Label 返回目标指标在理由文案中的名字。
func (g CampaignGoal) Label() string {
	switch g {
	case GoalROI:
		return "ROI"
	case GoalRedemptionRate:
		return "redemption rate"
	case GoalRevenue:
		return "revenue"
	default:
		return string(g)
	}
}

// RankedRecommendation 是排序结果中的一项，每次请求重新生成，不做持久化。
type RankedRecommendation struct {
	Record       PromotionRecord `json:"-"`
	RecordID     string          `json:"record_id"`
	Name         string          `json:"name"`
	Category     Category        `json:"category"`
	Rank         int             `json:"rank"`
	Goal         CampaignGoal    `json:"goal"`
	MetricValue  float64         `json:"metric_value"`
	DisplayValue string          `json:"display_value"`
	Rationale    []string        `json:"rationale"`
}
