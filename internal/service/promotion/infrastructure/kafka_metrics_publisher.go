package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"campusnexus/internal/pkg/mq"
	"campusnexus/internal/service/promotion/domain"
	"campusnexus/internal/service/promotion/metrics"
)

const (
	EventMetricsComputed = "PromotionMetricsComputed"
	EventRecordRejected  = "PromotionRecordRejected"
)

// MetricsEvent 是发布到 promotion-metrics topic 的消息体，由外部告警服务消费。
type MetricsEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	RunID      string    `json:"run_id"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordID   string    `json:"record_id"`

	Source    domain.RecordSource `json:"source,omitempty"`
	Category  domain.Category     `json:"category,omitempty"`
	Active    bool                `json:"active"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	Metrics   *metrics.Metrics    `json:"metrics,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

// KafkaMetricsPublisher 把组合评分结果逐条发布到 Kafka，按 record id 分区。
type KafkaMetricsPublisher struct {
	writer mq.MessageWriter
	now    func() time.Time
}

// NewKafkaMetricsPublisher 创建一个新的指标发布适配器。
func NewKafkaMetricsPublisher(writer mq.MessageWriter) *KafkaMetricsPublisher {
	return &KafkaMetricsPublisher{writer: writer, now: time.Now}
}

// PublishPortfolio 为每条合法记录发布一条指标事件，为每条被排除的记录发布一条拒绝事件。
// 返回发布的消息数。
func (p *KafkaMetricsPublisher) PublishPortfolio(ctx context.Context, runID string, records []domain.PromotionRecord, portfolio metrics.Portfolio) (int, error) {
	byID := make(map[string]domain.PromotionRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	occurredAt := p.now().UTC()

	msgs := make([]kafka.Message, 0, len(portfolio.Records)+len(portfolio.Rejected))
	for i := range portfolio.Records {
		m := portfolio.Records[i]
		record := byID[m.RecordID]
		event := MetricsEvent{
			EventID:    uuid.NewString(),
			EventType:  EventMetricsComputed,
			RunID:      runID,
			OccurredAt: occurredAt,
			RecordID:   m.RecordID,
			Source:     record.Source,
			Category:   record.Category,
			Active:     record.Active,
			ExpiresAt:  record.ExpiresAt,
			Metrics:    &m,
		}
		msg, err := newEventMessage(event)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}
	for _, rejected := range portfolio.Rejected {
		msg, err := newEventMessage(MetricsEvent{
			EventID:    uuid.NewString(),
			EventType:  EventRecordRejected,
			RunID:      runID,
			OccurredAt: occurredAt,
			RecordID:   rejected.RecordID,
			Reason:     rejected.Reason,
		})
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg)
	}

	if err := mq.ProduceMessages(ctx, p.writer, msgs...); err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Close 关闭底层的 Kafka writer。
func (p *KafkaMetricsPublisher) Close() error {
	return p.writer.Close()
}

func newEventMessage(event MetricsEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, errors.Wrapf(err, "marshal %s event", event.EventType)
	}
	return kafka.Message{
		Key:   []byte(event.RecordID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}, nil
}
