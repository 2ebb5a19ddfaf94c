package domain

import "errors"

var (
	// ErrMalformedRecord 表示记录的优惠形态不合法，属于上游数据质量问题。
	ErrMalformedRecord = errors.New("malformed promotion record")
	// ErrUnknownGoal 表示请求的优化目标不在支持范围内。
	ErrUnknownGoal = errors.New("unknown campaign goal")
	// ErrRecordNotFound 表示快照中找不到指定记录。
	ErrRecordNotFound = errors.New("promotion record not found")
	// ErrInvalidCatalog 表示日历目录无法通过校验。
	ErrInvalidCatalog = errors.New("invalid calendar catalog")
	// ErrInvalidRule 表示规则表达式无法编译或结果不是布尔值。
	ErrInvalidRule = errors.New("invalid rule expression")
	// ErrInvalidArgument 表示请求参数不合法。
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSnapshotUnavailable 表示无法从持久层读取快照。
	ErrSnapshotUnavailable = errors.New("promotion snapshot unavailable")
	// ErrPublisherDisabled 表示未配置指标发布通道。
	ErrPublisherDisabled = errors.New("metrics publisher is disabled")
)
