package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"campusnexus/internal/service/promotion/domain"
)

// GormPromotionRepository 是 PromotionRepository 的 GORM 实现，只读。
type GormPromotionRepository struct {
	db *gorm.DB
}

// NewGormPromotionRepository 创建一个新的 GORM 仓储实例
func NewGormPromotionRepository(db *gorm.DB) *GormPromotionRepository {
	return &GormPromotionRepository{db: db}
}

// ListSnapshot 读取一份记录快照，模板在前、优惠码在后，各自按主键升序。
// 固定的顺序保证同一份数据得到同样的排序结果。
func (r *GormPromotionRepository) ListSnapshot(ctx context.Context, filter domain.SnapshotFilter) ([]domain.PromotionRecord, error) {
	var records []domain.PromotionRecord

	if filter.Source == "" || filter.Source == domain.SourceTemplate {
		var models []PromotionTemplateModel
		if err := r.scoped(ctx, filter).Find(&models).Error; err != nil {
			return nil, errors.Wrap(err, "list promotion templates")
		}
		for i := range models {
			records = append(records, ToDomainTemplate(&models[i]))
		}
	}

	if filter.Source == "" || filter.Source == domain.SourceCode {
		var models []PromoCodeModel
		if err := r.scoped(ctx, filter).Find(&models).Error; err != nil {
			return nil, errors.Wrap(err, "list promo codes")
		}
		for i := range models {
			records = append(records, ToDomainPromoCode(&models[i]))
		}
	}
	return records, nil
}

// FindByID 按对外 id 查找单条记录
func (r *GormPromotionRepository) FindByID(ctx context.Context, id string) (*domain.PromotionRecord, error) {
	source, pk, ok := ParseRecordID(id)
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	var (
		record domain.PromotionRecord
		err    error
	)
	switch source {
	case domain.SourceTemplate:
		var model PromotionTemplateModel
		if err = r.db.WithContext(ctx).First(&model, pk).Error; err == nil {
			record = ToDomainTemplate(&model)
		}
	default:
		var model PromoCodeModel
		if err = r.db.WithContext(ctx).First(&model, pk).Error; err == nil {
			record = ToDomainPromoCode(&model)
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, errors.Wrapf(err, "find promotion record %s", id)
	}
	return &record, nil
}

func (r *GormPromotionRepository) scoped(ctx context.Context, filter domain.SnapshotFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Order("id")
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if len(filter.Categories) > 0 {
		categories := make([]string, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			categories = append(categories, string(c))
		}
		q = q.Where("category IN ?", categories)
	}
	return q
}
