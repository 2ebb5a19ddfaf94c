package infrastructure

import (
	"fmt"
	"strconv"
	"strings"

	"campusnexus/internal/service/promotion/domain"
)

// RecordID 生成对外的记录 id，例如 template-12、code-7。
func RecordID(source domain.RecordSource, id uint) string {
	return fmt.Sprintf("%s-%d", source, id)
}

// ParseRecordID 是 RecordID 的逆操作。
func ParseRecordID(recordID string) (domain.RecordSource, uint, bool) {
	prefix, num, ok := strings.Cut(recordID, "-")
	if !ok {
		return "", 0, false
	}
	source := domain.RecordSource(prefix)
	if source != domain.SourceTemplate && source != domain.SourceCode {
		return "", 0, false
	}
	id, err := strconv.ParseUint(num, 10, 64)
	if err != nil || id == 0 {
		return "", 0, false
	}
	return source, uint(id), true
}

// ToDomainTemplate 将模板模型转换为领域记录
func ToDomainTemplate(model *PromotionTemplateModel) domain.PromotionRecord {
	r := toDomainOffer(&model.OfferColumns)
	r.ID = RecordID(domain.SourceTemplate, model.ID)
	r.Source = domain.SourceTemplate
	r.CreatedAt = model.CreatedAt
	r.UpdatedAt = model.UpdatedAt
	return r
}

// ToDomainPromoCode 将优惠码模型转换为领域记录
func ToDomainPromoCode(model *PromoCodeModel) domain.PromotionRecord {
	r := toDomainOffer(&model.OfferColumns)
	r.ID = RecordID(domain.SourceCode, model.ID)
	r.Source = domain.SourceCode
	r.Code = model.Code
	r.CreatedAt = model.CreatedAt
	r.UpdatedAt = model.UpdatedAt
	return r
}

func toDomainOffer(c *OfferColumns) domain.PromotionRecord {
	return domain.PromotionRecord{
		Name:             c.Name,
		Description:      c.Description,
		Category:         domain.Category(strings.ToLower(c.Category)),
		DiscountKind:     domain.DiscountKind(strings.ToLower(c.DiscountKind)),
		Magnitude:        c.Magnitude,
		MinOrderAmount:   c.MinOrderAmount,
		MaxDiscount:      c.MaxDiscount,
		MaxRedemptions:   c.MaxRedemptions,
		DurationDays:     c.DurationDays,
		OrderTypes:       splitOrderTypes(c.OrderTypes),
		TimesRedeemed:    c.TimesRedeemed,
		ROIScore:         copyFloat(c.ROIScore),
		RedemptionRate:   copyFloat(c.RedemptionRate),
		RevenueGenerated: copyFloat(c.RevenueGenerated),
		Active:           c.Active,
		ExpiresAt:        c.ExpiresAt,
	}
}

func splitOrderTypes(s string) []domain.OrderType {
	var out []domain.OrderType
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, domain.OrderType(part))
		}
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return domain.Float(*v)
}
