package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeReconcile is the asynq task type for order reconciliation.
const TypeReconcile = "pricing:reconcile"

// Reconciliation triggers.
const (
	TriggerCheckout = "checkout"
	TriggerManual   = "manual"
)

// StatusTrigger names the trigger for a status transition.
func StatusTrigger(s Status) string {
	return "status:" + string(s)
}

// ReconcilePayload is the task body.
type ReconcilePayload struct {
	OrderID uuid.UUID `json:"orderId"`
	Trigger string    `json:"trigger"`
}

// NewReconcileTask builds a reconciliation task for orderID.
func NewReconcileTask(orderID uuid.UUID, trigger string) (*asynq.Task, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("reconcile task: order id required")
	}
	data, err := json.Marshal(ReconcilePayload{OrderID: orderID, Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcile, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Enqueuer schedules reconciliation.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, orderID uuid.UUID, trigger string) error
}

// AsynqEnqueuer schedules reconciliation tasks on an asynq queue.
type AsynqEnqueuer struct {
	Client *asynq.Client
	Queue  string
}

// EnqueueReconcile enqueues a reconciliation task for orderID.
func (e AsynqEnqueuer) EnqueueReconcile(ctx context.Context, orderID uuid.UUID, trigger string) error {
	if e.Client == nil {
		return fmt.Errorf("reconcile enqueue: asynq client not configured")
	}
	task, err := NewReconcileTask(orderID, trigger)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("reconcile enqueue: %w", err)
	}
	return nil
}

// ProcessTask runs reconciliation for an asynq task. Malformed payloads and missing
// orders are not retried.
func (r *Reconciler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.OrderID == uuid.Nil {
		return fmt.Errorf("reconcile payload without order id: %w", asynq.SkipRetry)
	}
	_, err := r.Reconcile(ctx, p.OrderID, p.Trigger)
	if err != nil && isNotFound(err) {
		return fmt.Errorf("reconcile %s: %v: %w", p.OrderID, err, asynq.SkipRetry)
	}
	return err
}
