// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 logger，所有日志都带上 service 字段。
func Init(serviceName, level string) {
	InitWithWriter(serviceName, level, os.Stdout)
}

// InitWithWriter 与 Init 相同，但允许指定输出目标，测试中使用。
func InitWithWriter(serviceName, level string, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	l := zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &log.Logger
}

// Ctx 返回 ctx 上绑定的 logger；没有绑定时，如果 ctx 中有 span，就补上 trace_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != zerolog.DefaultContextLogger && l.GetLevel() != zerolog.Disabled {
		return l
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l := log.Logger.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &l
	}
	return &log.Logger
}

// WithContext 把带 trace_id 的 logger 绑定到 ctx 上。
func WithContext(ctx context.Context) context.Context {
	return Ctx(ctx).WithContext(ctx)
}

// Middleware 先提取上游的追踪上下文，再为请求绑定 logger，请求结束后记录耗时。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
		Ctx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}
