package engine

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/metrics"
)

// Fingerprint 返回快照内容的摘要，快照任何字段变化都会改变结果。
// 它用作推荐结果缓存键的一部分。
func Fingerprint(records []domain.PromotionRecord) (string, error) {
	payload, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(xxhash.Sum64(payload), 16), nil
}

func configFingerprint(policy metrics.Policy, topN, maxRationale, slack, windowDays int) string {
	payload, err := json.Marshal(struct {
		Policy       metrics.Policy `json:"policy"`
		TopN         int            `json:"top_n"`
		MaxRationale int            `json:"max_rationale"`
		Slack        int            `json:"duration_slack_days"`
		Window       int            `json:"upcoming_window_days"`
	}{policy, topN, maxRationale, slack, windowDays})
	if err != nil {
		// 策略里出现 NaN/Inf，调用方据此跳过缓存
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}
