package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// OfferColumns 是模板和优惠码共有的列。
type OfferColumns struct {
	Name           string
	Description    string  `gorm:"type:text"`
	Category       string  `gorm:"type:varchar(32);index"`
	DiscountKind   string  `gorm:"type:varchar(16)"`
	Magnitude      float64 `gorm:"type:decimal(10,2)"`
	MinOrderAmount float64 `gorm:"type:decimal(10,2)"`
	MaxDiscount    float64 `gorm:"type:decimal(10,2)"`
	MaxRedemptions int
	DurationDays   int
	OrderTypes     string `gorm:"type:varchar(255)"` // 逗号分隔
	TimesRedeemed  int

	// 离线任务回写的指标，可能为空
	ROIScore         *float64 `gorm:"type:decimal(12,2)"`
	RedemptionRate   *float64 `gorm:"type:decimal(6,2)"`
	RevenueGenerated *float64 `gorm:"type:decimal(14,2)"`

	Active    bool `gorm:"index"`
	ExpiresAt *time.Time
}

// PromotionTemplateModel 对应数据库中的 promotion_templates 表
type PromotionTemplateModel struct {
	gorm.Model
	OfferColumns
}

// TableName 指定 GORM 应该使用的表名
func (PromotionTemplateModel) TableName() string {
	return "promotion_templates"
}

// PromoCodeModel 对应数据库中的 promo_codes 表
type PromoCodeModel struct {
	gorm.Model
	Code       string `gorm:"type:varchar(64);uniqueIndex"`
	TemplateID *uint  // 从模板发放的优惠码
	OfferColumns
}

// TableName 指定 GORM 应该使用的表名
func (PromoCodeModel) TableName() string {
	return "promo_codes"
}
