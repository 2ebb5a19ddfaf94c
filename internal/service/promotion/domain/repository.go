package domain

import "context"

// SnapshotFilter 限定读取快照的范围，零值表示全部记录。
type SnapshotFilter struct {
	Source     RecordSource
	ActiveOnly bool
	Categories []Category
}

// PromotionRepository 是引擎的入站读路径。
// 这是领域层与基础设施层之间的"插座"，只读，不提供任何写操作。
type PromotionRepository interface {
	ListSnapshot(ctx context.Context, filter SnapshotFilter) ([]PromotionRecord, error)
	FindByID(ctx context.Context, id string) (*PromotionRecord, error)
}
