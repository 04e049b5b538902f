package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"ticketrush/internal/service/ticket/domain"
)

func TestTriggerCompensationRunsInReverseOrder(t *testing.T) {
	rc := &ReservationContext{Ticket: &domain.Ticket{ID: 1}, UserID: "u-1"}
	var order []string

	rc.AddCompensation(func(context.Context) error { order = append(order, "release lock"); return nil })
	rc.AddCompensation(func(context.Context) error { order = append(order, "restore stock"); return errors.New("boom") })
	rc.AddCompensation(func(context.Context) error { order = append(order, "delete order"); return nil })

	rc.TriggerCompensation(context.Background())
	assert.Equal(t, []string{"delete order", "restore stock", "release lock"}, order)

	// 补偿只执行一次
	rc.TriggerCompensation(context.Background())
	assert.Len(t, order, 3)
}
