package types

import "time"

// OrderKind discriminates the concrete kind of a clinical order
type OrderKind string

const (
	KindMedication OrderKind = "medication"
	KindSurgical   OrderKind = "surgical"
	KindInspection OrderKind = "inspection"
	KindOperation  OrderKind = "operation"
	KindDischarge  OrderKind = "discharge"
)

// OrderStatus represents order lifecycle states
type OrderStatus string

const (
	OrderDraft         OrderStatus = "draft"
	OrderPendingReview OrderStatus = "pending_review"
	OrderAccepted      OrderStatus = "accepted"
	OrderInProgress    OrderStatus = "in_progress"
	OrderPendingStop   OrderStatus = "pending_stop"
	OrderStopped       OrderStatus = "stopped"
	OrderCompleted     OrderStatus = "completed"
	OrderCancelled     OrderStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStopped || s == OrderCompleted || s == OrderCancelled
}

// TimingStrategy governs how an order expands into execution tasks
type TimingStrategy string

const (
	TimingImmediate TimingStrategy = "immediate"
	TimingSpecific  TimingStrategy = "specific"
	TimingCyclic    TimingStrategy = "cyclic"
	TimingSlots     TimingStrategy = "slots"
)

// DrugItem is one drug line-item on an order
type DrugItem struct {
	DrugID int64  `json:"drug_id" db:"drug_id"`
	Dosage string `json:"dosage" db:"dosage"`
	Note   string `json:"note,omitempty" db:"note"`
}

// MedicationDetails holds the medication-specific fields of an order
type MedicationDetails struct {
	Strategy      TimingStrategy `json:"strategy"`
	StartTime     *time.Time     `json:"start_time,omitempty"`
	IntervalHours float64        `json:"interval_hours,omitempty"`
	IntervalDays  int            `json:"interval_days,omitempty"`
	SlotsMask     uint32         `json:"slots_mask,omitempty"`
	Route         string         `json:"route"`
	Drugs         []DrugItem     `json:"drugs"`
}

// SurgicalDetails holds the surgical-specific fields of an order.
// EducationItems and ProcedureItems are packed lists in "name|detail;name|detail"
// form as received from the ordering system; unparsable items are skipped.
type SurgicalDetails struct {
	SurgeryTime    time.Time  `json:"surgery_time"`
	EducationItems string     `json:"education_items,omitempty"`
	ProcedureItems string     `json:"procedure_items,omitempty"`
	Drugs          []DrugItem `json:"drugs,omitempty"`
}

// InspectionDetails holds the inspection-specific fields of an order.
// AppointmentTime is set by the external appointment workflow; task
// generation is deferred until it is present.
type InspectionDetails struct {
	AppointmentTime *time.Time `json:"appointment_time,omitempty"`
	InspectionName  string     `json:"inspection_name"`
	Precautions     string     `json:"precautions,omitempty"`
}

// OperationDetails holds the nursing-operation-specific fields of an order
type OperationDetails struct {
	Name          string         `json:"name"`
	Strategy      TimingStrategy `json:"strategy"`
	StartTime     *time.Time     `json:"start_time,omitempty"`
	IntervalHours float64        `json:"interval_hours,omitempty"`
	IntervalDays  int            `json:"interval_days,omitempty"`
	SlotsMask     uint32         `json:"slots_mask,omitempty"`
}

// DischargeDetails holds the discharge-specific fields of an order
type DischargeDetails struct {
	PlannedLeaveTime      time.Time `json:"planned_leave_time"`
	RequiresDrugRetrieval bool      `json:"requires_drug_retrieval"`
}

// Order is a physician-issued clinical directive. Exactly one of the
// kind-specific detail pointers is non-nil, matching Kind.
type Order struct {
	ID             int64       `json:"id" db:"id"`
	Kind           OrderKind   `json:"kind" db:"kind"`
	PatientID      int64       `json:"patient_id" db:"patient_id"`
	PhysicianID    int64       `json:"physician_id" db:"physician_id"`
	NurseID        *int64      `json:"nurse_id,omitempty" db:"nurse_id"`
	CareUnitID     int64       `json:"care_unit_id" db:"care_unit_id"`
	IsLongTerm     bool        `json:"is_long_term" db:"is_long_term"`
	Status         OrderStatus `json:"status" db:"status"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	PlannedEndTime time.Time   `json:"planned_end_time" db:"planned_end_time"`
	ActualEndTime  *time.Time  `json:"actual_end_time,omitempty" db:"actual_end_time"`

	Medication *MedicationDetails `json:"medication,omitempty"`
	Surgical   *SurgicalDetails   `json:"surgical,omitempty"`
	Inspection *InspectionDetails `json:"inspection,omitempty"`
	Operation  *OperationDetails  `json:"operation,omitempty"`
	Discharge  *DischargeDetails  `json:"discharge,omitempty"`
}

// StatusHistoryRecord is one immutable entry in the append-only order
// status log. The log is the audit source of truth for what happened when.
type StatusHistoryRecord struct {
	ID         string      `json:"id" db:"id"`
	OrderID    int64       `json:"order_id" db:"order_id"`
	FromStatus OrderStatus `json:"from_status" db:"from_status"`
	ToStatus   OrderStatus `json:"to_status" db:"to_status"`
	ActorID    int64       `json:"actor_id" db:"actor_id"`
	ActorType  ActorType   `json:"actor_type" db:"actor_type"`
	ActorName  string      `json:"actor_name" db:"actor_name"`
	Reason     string      `json:"reason,omitempty" db:"reason"`
	RecordedAt time.Time   `json:"recorded_at" db:"recorded_at"`
}
