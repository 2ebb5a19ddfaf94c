package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"campusnexus/internal/pkg/logger"
	"campusnexus/internal/service/promotion/application"
	"campusnexus/internal/service/promotion/domain"
)

// InsightHandler 封装了推荐服务的 HTTP 处理器
type InsightHandler struct {
	service *application.InsightService
}

// NewInsightHandler 创建一个新的 HTTP 处理器实例
func NewInsightHandler(service *application.InsightService) *InsightHandler {
	return &InsightHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InsightHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /recommendations", h.handleRecommendations)
	mux.HandleFunc("GET /promotions/portfolio", h.handlePortfolio)
	mux.HandleFunc("GET /promotions/{id}/metrics", h.handleRecordMetrics)
	mux.HandleFunc("POST /promotions/metrics/publish", h.handlePublish)
	mux.HandleFunc("GET /calendar/context", h.handleCalendarContext)
}

func (h *InsightHandler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := application.RecommendRequest{
		Goal:   q.Get("goal"),
		Source: q.Get("source"),
	}
	if top := q.Get("top"); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil {
			writeError(w, r, errors.Wrapf(domain.ErrInvalidArgument, "top %q is not a number", top))
			return
		}
		req.TopN = n
	}

	resp, err := h.service.Recommend(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InsightHandler) handleRecordMetrics(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.RecordMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InsightHandler) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.SnapshotFilter{
		Source:     domain.RecordSource(q.Get("source")),
		ActiveOnly: q.Get("active") == "true",
	}
	if raw := q.Get("category"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			category := domain.Category(strings.TrimSpace(c))
			if !category.Valid() {
				writeError(w, r, errors.Wrapf(domain.ErrInvalidArgument, "unknown category %q", c))
				return
			}
			filter.Categories = append(filter.Categories, category)
		}
	}

	resp, err := h.service.Portfolio(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InsightHandler) handleCalendarContext(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.CalendarContext(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *InsightHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.PublishMetrics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownGoal), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedRecord):
		return http.StatusUnprocessableEntity // 记录存在，但数据本身不合法
	case errors.Is(err, domain.ErrSnapshotUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPublisherDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
