package port

import (
	"context"

	"ticketrush/internal/service/ticket/domain"
)

// CompensationScheduler 是延迟补偿任务的出站端口。
// 任务在 task.FireAt 之后被投递到补偿处理器，至少投递一次。
type CompensationScheduler interface {
	Schedule(ctx context.Context, task domain.CompensationTask) error
}
