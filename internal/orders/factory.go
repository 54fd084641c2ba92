package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaHoon/Careflow-sub002/pkg/interfaces"
	"github.com/BaHoon/Careflow-sub002/pkg/logger"
	"github.com/BaHoon/Careflow-sub002/pkg/types"
)

// Fixed offsets for the surgical pre-operative decomposition
const (
	surgicalEducationOffset    = -16 * time.Hour
	surgicalProcedureOffset    = -2 * time.Hour
	surgicalVerificationOffset = -1 * time.Hour
)

// Fixed offsets for the inspection appointment decomposition
const (
	inspectionPrintGuideOffset    = -60 * time.Minute
	inspectionCheckCompleteOffset = 30 * time.Minute
)

// Offset before the planned leave time for discharge drug retrieval
const dischargeRetrievalOffset = -2 * time.Hour

// baseSurgicalEquipment is merged with the order's drug line-items into the
// pre-operative verification checklist
var baseSurgicalEquipment = []types.PayloadItem{
	{Name: "ID wristband"},
	{Name: "Surgical consent form"},
	{Name: "Patient chart"},
	{Name: "Imaging films"},
}

// durationRoutes lists administration routes that produce start/stop tasks
// instead of single-scan tasks
var durationRoutes = map[string]bool{
	"iv_drip":     true,
	"iv_pump":     true,
	"transfusion": true,
}

type builderFunc func(order *types.Order, instants []time.Time, now time.Time) []*types.ExecutionTask

// TaskFactory converts an order plus its resolved instants into execution
// task drafts. Dispatch is a table over the order kind.
type TaskFactory struct {
	logger   *logger.Logger
	drugs    interfaces.DrugCatalog
	builders map[types.OrderKind]builderFunc
}

// NewTaskFactory creates a new task factory
func NewTaskFactory(drugs interfaces.DrugCatalog, log *logger.Logger) *TaskFactory {
	f := &TaskFactory{
		logger: log,
		drugs:  drugs,
	}
	f.builders = map[types.OrderKind]builderFunc{
		types.KindMedication: f.buildMedicationTasks,
		types.KindSurgical:   f.buildSurgicalTasks,
		types.KindInspection: f.buildInspectionTasks,
		types.KindOperation:  f.buildOperationTasks,
		types.KindDischarge:  f.buildDischargeTasks,
	}
	return f
}

// BuildTasks expands an order into task drafts. Every produced task is
// Pending with a payload fully describing the work; an empty result is a
// normal outcome, not an error.
func (f *TaskFactory) BuildTasks(order *types.Order, instants []time.Time, now time.Time) ([]*types.ExecutionTask, error) {
	build, ok := f.builders[order.Kind]
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("unknown order kind %q", order.Kind), nil)
	}
	return build(order, instants, now), nil
}

// BuildReportReviewTask creates the report-review task generated when a
// report is attached to an inspection order after acknowledgement
func (f *TaskFactory) BuildReportReviewTask(order *types.Order, reportRef string, now time.Time) *types.ExecutionTask {
	name := "inspection"
	if order.Inspection != nil {
		name = order.Inspection.InspectionName
	}
	return f.newTask(order, types.CategoryResultPending, now, types.TaskPayload{
		TaskType:    "inspection_report_review",
		Title:       fmt.Sprintf("Review report: %s", name),
		Description: fmt.Sprintf("Report %s attached, review findings with the patient", reportRef),
	}, now)
}

func (f *TaskFactory) buildMedicationTasks(order *types.Order, instants []time.Time, now time.Time) []*types.ExecutionTask {
	details := order.Medication
	if details == nil {
		return nil
	}

	category := types.CategoryImmediate
	if durationRoutes[details.Route] {
		category = types.CategoryDuration
	}

	items := f.drugPayloadItems(order.ID, details.Drugs)

	var tasks []*types.ExecutionTask
	for _, instant := range instants {
		tasks = append(tasks, f.newTask(order, category, instant, types.TaskPayload{
			TaskType:    "medication_administration",
			Title:       "Administer medication",
			Description: fmt.Sprintf("Route: %s", details.Route),
			Items:       items,
		}, now))
	}
	return tasks
}

func (f *TaskFactory) buildSurgicalTasks(order *types.Order, _ []time.Time, now time.Time) []*types.ExecutionTask {
	details := order.Surgical
	if details == nil {
		return nil
	}

	var tasks []*types.ExecutionTask

	for _, item := range f.parsePackedItems(order.ID, details.EducationItems) {
		tasks = append(tasks, f.newTask(order, types.CategoryImmediate,
			details.SurgeryTime.Add(surgicalEducationOffset), types.TaskPayload{
				TaskType:    "preop_education",
				Title:       fmt.Sprintf("Pre-operative education: %s", item.Name),
				Description: item.Detail,
			}, now))
	}

	for _, item := range f.parsePackedItems(order.ID, details.ProcedureItems) {
		tasks = append(tasks, f.newTask(order, types.CategoryDuration,
			details.SurgeryTime.Add(surgicalProcedureOffset), types.TaskPayload{
				TaskType:    "preop_procedure",
				Title:       fmt.Sprintf("Pre-operative procedure: %s", item.Name),
				Description: item.Detail,
			}, now))
	}

	// Exactly one aggregated supply/equipment verification task
	verifyItems := append([]types.PayloadItem{}, baseSurgicalEquipment...)
	verifyItems = append(verifyItems, f.drugPayloadItems(order.ID, details.Drugs)...)
	tasks = append(tasks, f.newTask(order, types.CategoryVerification,
		details.SurgeryTime.Add(surgicalVerificationOffset), types.TaskPayload{
			TaskType: "preop_verification",
			Title:    "Verify surgical supplies and equipment",
			Items:    verifyItems,
		}, now))

	return tasks
}

func (f *TaskFactory) buildInspectionTasks(order *types.Order, _ []time.Time, now time.Time) []*types.ExecutionTask {
	details := order.Inspection
	if details == nil || details.AppointmentTime == nil {
		// Task generation is deferred until the external appointment
		// workflow sets the appointment time
		return nil
	}

	appointment := *details.AppointmentTime

	return []*types.ExecutionTask{
		f.newTask(order, types.CategoryApplicationWithPrint,
			appointment.Add(inspectionPrintGuideOffset), types.TaskPayload{
				TaskType:  "inspection_print_guide",
				Title:     fmt.Sprintf("Print guide sheet: %s", details.InspectionName),
				Checklist: inspectionChecklist(details.Precautions),
			}, now),
		f.newTask(order, types.CategoryImmediate, appointment, types.TaskPayload{
			TaskType: "inspection_check_in",
			Title:    fmt.Sprintf("Check in: %s", details.InspectionName),
		}, now),
		f.newTask(order, types.CategoryImmediate,
			appointment.Add(inspectionCheckCompleteOffset), types.TaskPayload{
				TaskType: "inspection_check_complete",
				Title:    fmt.Sprintf("Confirm completion: %s", details.InspectionName),
			}, now),
	}
}

func (f *TaskFactory) buildOperationTasks(order *types.Order, instants []time.Time, now time.Time) []*types.ExecutionTask {
	details := order.Operation
	if details == nil {
		return nil
	}

	var tasks []*types.ExecutionTask
	for _, instant := range instants {
		tasks = append(tasks, f.newTask(order, types.CategoryDuration, instant, types.TaskPayload{
			TaskType: "nursing_operation",
			Title:    details.Name,
		}, now))
	}
	return tasks
}

func (f *TaskFactory) buildDischargeTasks(order *types.Order, _ []time.Time, now time.Time) []*types.ExecutionTask {
	details := order.Discharge
	if details == nil {
		return nil
	}

	var tasks []*types.ExecutionTask

	if details.RequiresDrugRetrieval {
		tasks = append(tasks, f.newTask(order, types.CategoryImmediate,
			details.PlannedLeaveTime.Add(dischargeRetrievalOffset), types.TaskPayload{
				TaskType: "discharge_drug_retrieval",
				Title:    "Retrieve take-home medication from pharmacy",
			}, now))
	}

	tasks = append(tasks, f.newTask(order, types.CategoryDischargeConfirmation,
		details.PlannedLeaveTime, types.TaskPayload{
			TaskType: "discharge_confirmation",
			Title:    "Confirm patient discharge",
			Checklist: []string{
				"Return ward property",
				"Hand over discharge summary",
				"Confirm follow-up appointment",
			},
		}, now))

	return tasks
}

// newTask builds a Pending task draft owned by the order
func (f *TaskFactory) newTask(order *types.Order, category types.TaskCategory, planned time.Time, payload types.TaskPayload, now time.Time) *types.ExecutionTask {
	return &types.ExecutionTask{
		OrderID:          order.ID,
		PatientID:        order.PatientID,
		Category:         category,
		Status:           types.TaskPending,
		PlannedStartTime: planned,
		Data:             payload,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// parsePackedItems parses "name|detail;name|detail" lists as received from
// the ordering system. Unparsable items are skipped, never aborting the
// whole order's task generation for one bad sub-record.
func (f *TaskFactory) parsePackedItems(orderID int64, raw string) []types.PayloadItem {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var items []types.PayloadItem
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, "|", 2)
		name := strings.TrimSpace(fields[0])
		if name == "" {
			f.logger.WithOrderID(orderID).WithField("item", part).Warn("Skipping unparsable order sub-item")
			continue
		}
		item := types.PayloadItem{Name: name}
		if len(fields) == 2 {
			item.Detail = strings.TrimSpace(fields[1])
		}
		items = append(items, item)
	}
	return items
}

// drugPayloadItems maps drug line-items into payload items, resolving
// display names through the drug catalog
func (f *TaskFactory) drugPayloadItems(orderID int64, drugs []types.DrugItem) []types.PayloadItem {
	var items []types.PayloadItem
	for _, drug := range drugs {
		name, err := f.drugs.DrugName(drug.DrugID)
		if err != nil {
			f.logger.WithOrderID(orderID).WithField("drug_id", drug.DrugID).WithError(err).Warn("Drug name lookup failed, using id")
			name = fmt.Sprintf("drug-%d", drug.DrugID)
		}
		detail := drug.Dosage
		if drug.Note != "" {
			detail = fmt.Sprintf("%s (%s)", drug.Dosage, drug.Note)
		}
		items = append(items, types.PayloadItem{Name: name, Detail: detail})
	}
	return items
}

// inspectionChecklist assembles preparation steps by keyword matching the
// inspection's precaution text
func inspectionChecklist(precautions string) []string {
	p := strings.ToLower(precautions)
	var checklist []string
	if strings.Contains(p, "fast") {
		checklist = append(checklist, "Confirm patient has fasted")
	}
	if strings.Contains(p, "bladder") {
		checklist = append(checklist, "Confirm bladder is full")
	}
	if strings.Contains(p, "metal") {
		checklist = append(checklist, "Remove metal objects before entering")
	}
	return checklist
}
