package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"ticketrush/internal/service/ticket/domain"
)

// ClaimLockHandler 负责“每人每票种限购一次”的加锁步骤。
type ClaimLockHandler struct {
	NextHandler
}

func (h *ClaimLockHandler) Handle(rc *ReservationContext) error {
	ctx, span := rc.Tracer.Start(rc.Ctx, "saga.AcquireClaimLock")
	span.SetAttributes(
		attribute.Int64("ticket.id", rc.Ticket.ID),
		attribute.String("user.id", rc.UserID),
	)

	acquired, err := rc.Locks.TryAcquire(ctx, rc.UserID, rc.Ticket.ID, rc.LockToken, rc.LockTTL)
	if err != nil {
		// 超时等错误下锁可能已经写入，按 token 释放不会误删其他请求的锁
		h.registerRelease(rc)
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim lock store failed")
		span.End()
		return fmt.Errorf("%w: %v", domain.ErrReservationFailed, err)
	}
	if !acquired {
		span.SetStatus(codes.Error, domain.ErrDuplicateClaim.Error())
		span.End()
		return domain.ErrDuplicateClaim
	}
	span.End()

	h.registerRelease(rc)

	return h.executeNext(rc)
}

func (h *ClaimLockHandler) registerRelease(rc *ReservationContext) {
	rc.AddCompensation(func(compCtx context.Context) error {
		compCtx, compSpan := rc.Tracer.Start(compCtx, "saga.compensation.ReleaseClaimLock")
		defer compSpan.End()
		if err := rc.Locks.Release(compCtx, rc.UserID, rc.Ticket.ID, rc.LockToken); err != nil {
			compSpan.RecordError(err)
			return err
		}
		return nil
	})
}
