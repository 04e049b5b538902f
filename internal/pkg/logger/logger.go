// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init 初始化全局日志器，所有服务在启动时调用一次。
func Init(serviceName, level string) {
	InitWithWriter(os.Stdout, serviceName, level)
}

// InitWithWriter 与 Init 相同，但允许指定输出目标（测试中使用）。
func InitWithWriter(w io.Writer, serviceName, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	base = zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// L 返回不带上下文信息的全局日志器
func L() *zerolog.Logger {
	return &base
}

// Ctx 返回一个附带链路信息 (trace_id / span_id) 的日志器
func Ctx(ctx context.Context) *zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return &base
	}
	l := base.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
	return &l
}

// Alert 输出一条运维告警级别的日志，但不会终止进程。
// zerolog 的 Fatal() 会调用 os.Exit，这里必须使用 WithLevel。
func Alert(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).WithLevel(zerolog.FatalLevel).Bool("alert", true)
}
