package rationale

import (
	"campusnexus/internal/service/promotion/calendar"
	"campusnexus/internal/service/promotion/domain"
)

// Candidate 是等待生成理由的已排序记录。
type Candidate struct {
	Record       domain.PromotionRecord
	Goal         domain.CampaignGoal
	Rank         int
	DisplayValue string
}

// Request 在理由链中传递，各环节只向 Lines 追加内容。
type Request struct {
	Candidate  Candidate
	Calendar   calendar.Context
	Heuristics []calendar.Heuristic
	Rules      domain.RuleEngine

	Lines    []string
	maxLines int
	slack    int
}

func (r *Request) full() bool {
	return len(r.Lines) >= r.maxLines
}

func (r *Request) add(line string) {
	if line != "" && !r.full() {
		r.Lines = append(r.Lines, line)
	}
}

// Handler 是理由链上的一个检查环节。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(req *Request)
}

// NextHandler 提供链式调用的公共实现，名额用完后不再往下执行。
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(req *Request) {
	if h.next != nil && !req.full() {
		h.next.Handle(req)
	}
}
