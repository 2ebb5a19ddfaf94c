package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"campusnexus/internal/service/promotion/domain"
)

// FormatMetric 生成目标指标的展示值：比率类输出百分比，收入输出缩写金额。
// 货币符号和本地化由展示层负责。
func FormatMetric(goal domain.CampaignGoal, value float64) string {
	switch goal {
	case domain.GoalROI, domain.GoalRedemptionRate:
		return fmt.Sprintf("%.1f%%", value)
	case domain.GoalRevenue:
		return AbbreviateAmount(value)
	default:
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
}

// AbbreviateAmount 把金额缩写为 950、1.5K、2.3M 这样的形式。
// 先取整再选单位，999.6 显示为 1K 而不是 1000。
func AbbreviateAmount(v float64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	n := math.Round(v)
	if n == 0 {
		return "0"
	}
	units := []struct {
		size   float64
		suffix string
	}{
		{1e9, "B"},
		{1e6, "M"},
		{1e3, "K"},
	}
	for i, u := range units {
		if n < u.size {
			continue
		}
		rounded := math.Round(n/u.size*10) / 10
		// 999950 进位后应显示为 1M 而不是 1000K
		if rounded >= 1000 && i > 0 {
			u = units[i-1]
			rounded = math.Round(n/u.size*10) / 10
		}
		scaled := strconv.FormatFloat(rounded, 'f', 1, 64)
		return sign + strings.TrimSuffix(scaled, ".0") + u.suffix
	}
	return sign + strconv.FormatFloat(n, 'f', -1, 64)
}
