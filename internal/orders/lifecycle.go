package orders

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/monitoring"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
	"github.com/google/uuid"
)

// orderLocks hands out one mutex per order id so that lifecycle operations
// on the same order run one at a time. An acknowledge, stop and withdraw
// racing on one order would otherwise interleave their read-validate-write
// sequences and leave locked tasks without a ledger entry to restore them.
// Entries live for the process lifetime; the active order set is small.
type orderLocks struct {
	mus sync.Map
}

// lock acquires the order's mutex and returns its release func
func (l *orderLocks) lock(orderID int64) func() {
	v, _ := l.mus.LoadOrStore(orderID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// orderTransitions enumerates the legal status transitions of the order
// state machine. Cancellation is handled separately: any non-terminal
// state may cancel.
var orderTransitions = map[types.OrderStatus]map[types.OrderStatus]bool{
	types.OrderDraft: {
		types.OrderPendingReview: true,
	},
	types.OrderPendingReview: {
		types.OrderAccepted: true,
		types.OrderDraft:    true,
	},
	types.OrderAccepted: {
		types.OrderInProgress:  true,
		types.OrderPendingStop: true,
		types.OrderCompleted:   true,
	},
	types.OrderInProgress: {
		types.OrderPendingStop: true,
		types.OrderCompleted:   true,
	},
	types.OrderPendingStop: {
		types.OrderStopped:    true,
		types.OrderAccepted:   true,
		types.OrderInProgress: true,
	},
}

// canTransition reports whether the state machine permits from -> to
func canTransition(from, to types.OrderStatus) bool {
	if to == types.OrderCancelled {
		return !from.IsTerminal()
	}
	return orderTransitions[from][to]
}

// transitionOrder validates and applies one status transition, persisting
// the new status and one immutable history record. The history log is
// append-only and never mutated.
func (s *Service) transitionOrder(order *types.Order, to types.OrderStatus, actor types.Actor, reason string) error {
	from := order.Status
	if !canTransition(from, to) {
		return types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("order %d cannot move from %s to %s", order.ID, from, to),
			map[string]interface{}{"order_id": order.ID, "from": string(from), "to": string(to)})
	}

	now := time.Now()
	updates := map[string]interface{}{"status": string(to)}
	if to == types.OrderCompleted || to == types.OrderStopped || to == types.OrderCancelled {
		updates["actual_end_time"] = now
	}

	if err := s.orders.UpdateOrder(order.ID, updates); err != nil {
		return fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}

	record := &types.StatusHistoryRecord{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorType:  actor.Type,
		ActorName:  actor.Name,
		Reason:     reason,
		RecordedAt: now,
	}
	if err := s.orders.AppendStatusHistory(record); err != nil {
		return fmt.Errorf("failed to append status history for order %d: %w", order.ID, err)
	}

	order.Status = to
	s.logger.Audit(actor.ID, fmt.Sprintf("order_status_%s", to), fmt.Sprintf("order/%d", order.ID), true,
		map[string]interface{}{"from": string(from), "to": string(to), "reason": reason})
	monitoring.RecordOrderTransition(string(from), string(to))
	return nil
}

// AcknowledgeOrders processes new-order acknowledgement for a batch of
// order ids. Each id is processed independently: a failure on one order is
// recorded in the error list and does not prevent the rest.
func (s *Service) AcknowledgeOrders(actor types.Actor, orderIDs []int64) (*types.BatchResult, error) {
	result := &types.BatchResult{}
	now := time.Now()

	for _, orderID := range orderIDs {
		res, err := s.acknowledgeOne(actor, orderID, now)
		if err != nil {
			s.logger.WithOrderID(orderID).WithError(err).Warn("Order acknowledgement failed")
			result.Errors = append(result.Errors, fmt.Sprintf("order %d: %v", orderID, err))
			continue
		}
		result.Results = append(result.Results, res)
	}

	result.Success = len(result.Results) > 0 || len(result.Errors) == 0
	return result, nil
}

// acknowledgeOne moves one order from PendingReview to Accepted, generating
// and assigning its execution tasks. Tasks are built in memory and
// persisted once complete, so a failure leaves no partial task set.
func (s *Service) acknowledgeOne(actor types.Actor, orderID int64, now time.Time) (*types.OrderActionResult, error) {
	defer s.orderMu.lock(orderID)()

	order, err := s.orders.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.OrderPendingReview {
		return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("order %d is %s, expected %s", orderID, order.Status, types.OrderPendingReview), nil)
	}

	instants, err := s.resolveOrderInstants(order, now)
	if err != nil {
		return nil, err
	}

	tasks, err := s.factory.BuildTasks(order, instants, now)
	if err != nil {
		return nil, err
	}

	assigned, unassigned := 0, 0
	for _, task := range tasks {
		staffID, err := s.duty.Resolve(order.CareUnitID, task.PlannedStartTime)
		if err != nil {
			return nil, err
		}
		if staffID != nil {
			task.AssigneeNurseID = staffID
			assigned++
		} else {
			unassigned++
		}
	}

	if len(tasks) > 0 {
		if err := s.tasks.CreateTasks(tasks); err != nil {
			return nil, err
		}
	}

	if err := s.transitionOrder(order, types.OrderAccepted, actor, ""); err != nil {
		return nil, err
	}

	for _, task := range tasks {
		monitoring.RecordTasksGenerated(string(order.Kind), string(task.Category), 1)
	}
	s.notifyAssignments(tasks)

	return &types.OrderActionResult{
		OrderID:         orderID,
		TasksCreated:    len(tasks),
		TasksAssigned:   assigned,
		TasksUnassigned: unassigned,
	}, nil
}

// resolveOrderInstants runs the timing resolver for frequency-driven order
// kinds. Fixed-offset kinds (surgical, inspection, discharge) derive their
// task times inside the factory and need no resolved instants.
func (s *Service) resolveOrderInstants(order *types.Order, now time.Time) ([]time.Time, error) {
	switch order.Kind {
	case types.KindMedication:
		if order.Medication == nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("order %d has no medication details", order.ID), nil)
		}
		return ResolveInstants(TimingInput{
			Strategy:       order.Medication.Strategy,
			AcknowledgedAt: now,
			StartTime:      order.Medication.StartTime,
			IntervalHours:  order.Medication.IntervalHours,
			IntervalDays:   order.Medication.IntervalDays,
			SlotsMask:      order.Medication.SlotsMask,
			PlannedEnd:     order.PlannedEndTime,
		}, s.slots)
	case types.KindOperation:
		if order.Operation == nil {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput,
				fmt.Sprintf("order %d has no operation details", order.ID), nil)
		}
		return ResolveInstants(TimingInput{
			Strategy:       order.Operation.Strategy,
			AcknowledgedAt: now,
			StartTime:      order.Operation.StartTime,
			IntervalHours:  order.Operation.IntervalHours,
			IntervalDays:   order.Operation.IntervalDays,
			SlotsMask:      order.Operation.SlotsMask,
			PlannedEnd:     order.PlannedEndTime,
		}, s.slots)
	default:
		return nil, nil
	}
}

// RejectOrders returns a batch of orders from PendingReview to Draft with a
// mandatory reason. No tasks are generated.
func (s *Service) RejectOrders(actor types.Actor, orderIDs []int64, reason string) (*types.BatchResult, error) {
	if reason == "" {
		return nil, types.NewValidationError(types.ErrCodeReasonRequired, "rejection requires a reason", nil)
	}

	result := &types.BatchResult{}
	for _, orderID := range orderIDs {
		if err := s.transitionOne(orderID, types.OrderDraft, actor, reason); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("order %d: %v", orderID, err))
			continue
		}
		result.Results = append(result.Results, &types.OrderActionResult{OrderID: orderID})
	}

	result.Success = len(result.Results) > 0 || len(result.Errors) == 0
	return result, nil
}

// transitionOne reloads one order under its mutex and applies a single
// status transition
func (s *Service) transitionOne(orderID int64, to types.OrderStatus, actor types.Actor, reason string) error {
	defer s.orderMu.lock(orderID)()

	order, err := s.orders.GetOrderByID(orderID)
	if err != nil {
		return err
	}
	return s.transitionOrder(order, to, actor, reason)
}

// StopOrder issues a physician stop against a running order. Every
// non-terminal task scheduled strictly after the stop-after task is locked
// with its prior status recorded, and the order enters PendingStop.
func (s *Service) StopOrder(actor types.Actor, orderID int64, reason string, stopAfterTaskID int64) (*types.StopResult, error) {
	if reason == "" {
		return nil, types.NewValidationError(types.ErrCodeReasonRequired, "stopping an order requires a reason", nil)
	}
	if stopAfterTaskID == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "stopping an order requires a stop-after task reference", nil)
	}

	defer s.orderMu.lock(orderID)()

	order, err := s.orders.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}
	if !canTransition(order.Status, types.OrderPendingStop) {
		return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("order %d is %s and cannot be stopped", orderID, order.Status), nil)
	}

	lockedIDs, err := s.stopLock.Lock(orderID, stopAfterTaskID)
	if err != nil {
		return nil, err
	}

	if err := s.transitionOrder(order, types.OrderPendingStop, actor, reason); err != nil {
		// The order never entered PendingStop, so the locks must not stand.
		if _, restoreErr := s.stopLock.Restore(orderID); restoreErr != nil {
			s.logger.WithOrderID(orderID).WithError(restoreErr).Error("Failed to unlock tasks after stop transition failure")
		}
		return nil, err
	}

	if err := s.notifier.NotifyOrderStopped(orderID, lockedIDs); err != nil {
		s.logger.WithOrderID(orderID).WithError(err).Error("Failed to send stop notification")
	}

	return &types.StopResult{OrderID: orderID, LockedTaskIDs: lockedIDs}, nil
}

// AcknowledgeStops confirms pending stops for a batch of orders. Locked
// tasks remain locked; no further tasks are generated.
func (s *Service) AcknowledgeStops(actor types.Actor, orderIDs []int64) (*types.BatchResult, error) {
	result := &types.BatchResult{}
	for _, orderID := range orderIDs {
		if err := s.transitionOne(orderID, types.OrderStopped, actor, ""); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("order %d: %v", orderID, err))
			continue
		}
		result.Results = append(result.Results, &types.OrderActionResult{OrderID: orderID})
	}

	result.Success = len(result.Results) > 0 || len(result.Errors) == 0
	return result, nil
}

// WithdrawStop retracts a physician stop before the nurse confirms it.
// Every locked task is restored to its recorded pre-lock status and the
// restoration mapping is returned for the audit display.
func (s *Service) WithdrawStop(actor types.Actor, orderID int64, reason string) (*types.RestoreResult, error) {
	if reason == "" {
		return nil, types.NewValidationError(types.ErrCodeReasonRequired, "withdrawing a stop requires a reason", nil)
	}
	return s.undoStop(actor, orderID, reason)
}

// RejectStop lets the nurse refuse pending stops for a batch of orders,
// restoring the locked tasks the same way a withdraw does
func (s *Service) RejectStop(actor types.Actor, orderIDs []int64, reason string) (*types.BatchRestoreResult, error) {
	if reason == "" {
		return nil, types.NewValidationError(types.ErrCodeReasonRequired, "rejecting a stop requires a reason", nil)
	}

	result := &types.BatchRestoreResult{}
	for _, orderID := range orderIDs {
		res, err := s.undoStop(actor, orderID, reason)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("order %d: %v", orderID, err))
			continue
		}
		result.Results = append(result.Results, res)
	}

	result.Success = len(result.Results) > 0 || len(result.Errors) == 0
	return result, nil
}

// undoStop restores the locked tasks of a PendingStop order and returns it
// to the status it held before the stop was issued
func (s *Service) undoStop(actor types.Actor, orderID int64, reason string) (*types.RestoreResult, error) {
	defer s.orderMu.lock(orderID)()

	order, err := s.orders.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != types.OrderPendingStop {
		return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("order %d is %s, expected %s", orderID, order.Status, types.OrderPendingStop), nil)
	}

	restored, err := s.stopLock.Restore(orderID)
	if err != nil {
		return nil, err
	}

	if err := s.transitionOrder(order, s.statusBeforeStop(orderID), actor, reason); err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyStopWithdrawn(orderID, restored); err != nil {
		s.logger.WithOrderID(orderID).WithError(err).Error("Failed to send stop-withdrawn notification")
	}

	return &types.RestoreResult{OrderID: orderID, Restored: restored}, nil
}

// statusBeforeStop reads the status history to find which state the order
// held before the pending stop was issued
func (s *Service) statusBeforeStop(orderID int64) types.OrderStatus {
	history, err := s.orders.GetStatusHistory(orderID)
	if err != nil {
		s.logger.WithOrderID(orderID).WithError(err).Warn("Failed to read status history, restoring to accepted")
		return types.OrderAccepted
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ToStatus == types.OrderPendingStop {
			return history[i].FromStatus
		}
	}
	return types.OrderAccepted
}

// CancelOrder hard-cancels an order from any non-terminal state with a
// mandatory reason. Forbidden once Completed or Stopped.
func (s *Service) CancelOrder(actor types.Actor, orderID int64, reason string) error {
	if reason == "" {
		return types.NewValidationError(types.ErrCodeReasonRequired, "cancelling an order requires a reason", nil)
	}
	return s.transitionOne(orderID, types.OrderCancelled, actor, reason)
}

// CompleteOrder closes an order whose planned window has elapsed or whose
// tasks have all finished. Completion is driven by an external trigger
// (nurse action or the periodic sweep), never an internal timer.
func (s *Service) CompleteOrder(actor types.Actor, orderID int64) error {
	return s.transitionOne(orderID, types.OrderCompleted, actor, "")
}

// AttachInspectionReport handles the external "report attached" event for
// an inspection order by generating its report-review task. This happens
// asynchronously, after acknowledgement-time task generation.
func (s *Service) AttachInspectionReport(orderID int64, reportRef string) (*types.ExecutionTask, error) {
	if reportRef == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "report reference is required", nil)
	}

	defer s.orderMu.lock(orderID)()

	order, err := s.orders.GetOrderByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.Kind != types.KindInspection {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("order %d is %s, reports attach to inspection orders only", orderID, order.Kind), nil)
	}
	// A closed order generates no further tasks.
	if order.Status.IsTerminal() {
		return nil, types.NewInvalidStateError(types.ErrCodeInvalidTransition,
			fmt.Sprintf("order %d is %s", orderID, order.Status), nil)
	}

	now := time.Now()
	task := s.factory.BuildReportReviewTask(order, reportRef, now)

	staffID, err := s.duty.Resolve(order.CareUnitID, task.PlannedStartTime)
	if err != nil {
		return nil, err
	}
	task.AssigneeNurseID = staffID

	if err := s.tasks.CreateTasks([]*types.ExecutionTask{task}); err != nil {
		return nil, err
	}

	monitoring.RecordTasksGenerated(string(order.Kind), string(task.Category), 1)
	s.notifyAssignments([]*types.ExecutionTask{task})
	return task, nil
}

// notifyAssignments groups freshly created tasks by assignee and notifies
// each nurse once. Notification failures are logged, never propagated.
func (s *Service) notifyAssignments(tasks []*types.ExecutionTask) {
	byNurse := make(map[int64][]*types.ExecutionTask)
	for _, task := range tasks {
		if task.AssigneeNurseID != nil {
			byNurse[*task.AssigneeNurseID] = append(byNurse[*task.AssigneeNurseID], task)
		}
	}
	for nurseID, assigned := range byNurse {
		if err := s.notifier.NotifyTasksAssigned(nurseID, assigned); err != nil {
			s.logger.WithField("nurse_id", nurseID).WithError(err).Error("Failed to send assignment notification")
		}
	}
}
