package engine

import (
	"context"
	"fmt"

	"github.com/fleetcore/engine/pkg/ferrors"
)

// plannedStep is the Planner's intermediate representation before step
// rows are assigned run/index and persisted.
type plannedStep struct {
	StepType StepType
	StepCode string
	Label    string

	// NAVIGATE fields.
	AreaID     string
	X          float64
	Y          float64
	Yaw        float64
	StopRadius float64
}

// Planner expands a Task into the ordered protocol of Steps its
// task_type runs through. Dispatch is a closed table keyed by
// TaskType, not an open interface hierarchy — the protocol set is
// bounded and closed.
type Planner struct {
	resolver *Resolver
}

// NewPlanner builds a Planner over the given POI resolver.
func NewPlanner(resolver *Resolver) *Planner {
	return &Planner{resolver: resolver}
}

// Plan expands task into an ordered step sequence for robotID. Returns
// an InvalidArgumentError wrapping the offending (kind, ref) if any
// NAVIGATE step's POI cannot be resolved.
func (p *Planner) Plan(ctx context.Context, task *Task, robotID string) ([]plannedStep, error) {
	switch task.TaskType {
	case TaskNavigate:
		nav, err := p.nav(ctx, robotID, task.TargetKind, task.TargetRef, "NAVIGATE", task.Title)
		if err != nil {
			return nil, err
		}
		return []plannedStep{nav}, nil

	case TaskCharging:
		ref := task.TargetRef
		if ref == "" {
			ref = "main"
		}
		label := task.Title
		if label == "" {
			label = "Charging: go to charging station"
		}
		nav, err := p.nav(ctx, robotID, "CHARGING", ref, "NAVIGATE", label)
		if err != nil {
			return nil, err
		}
		return []plannedStep{nav}, nil

	case TaskOrdering:
		nav, err := p.nav(ctx, robotID, "TABLE", task.TargetRef, "NAVIGATE", fmt.Sprintf("Ordering: go to table %s", task.TargetRef))
		if err != nil {
			return nil, err
		}
		return []plannedStep{
			nav,
			manual("ORDER_DECISION", "Ordering: touchscreen decision (POSTPONE or COMPLETED)"),
		}, nil

	case TaskDelivery:
		toKitchen, err := p.nav(ctx, robotID, "KITCHEN", "main", "NAVIGATE", "Delivery: go to kitchen")
		if err != nil {
			return nil, err
		}
		toTable, err := p.nav(ctx, robotID, "TABLE", task.TargetRef, "NAVIGATE", fmt.Sprintf("Delivery: go to table %s", task.TargetRef))
		if err != nil {
			return nil, err
		}
		return []plannedStep{
			toKitchen,
			manual("DELIVERY_LOADED", "Delivery: chef loaded & verified"),
			toTable,
			manual("DELIVERY_DONE", "Delivery: delivered"),
		}, nil

	case TaskCleanup:
		toTable, err := p.nav(ctx, robotID, "TABLE", task.TargetRef, "NAVIGATE", fmt.Sprintf("Cleanup: go to table %s", task.TargetRef))
		if err != nil {
			return nil, err
		}
		toWashing, err := p.nav(ctx, robotID, "WASHING", "main", "NAVIGATE", "Cleanup: go to washing area")
		if err != nil {
			return nil, err
		}
		return []plannedStep{
			toTable,
			manual("CLEANUP_HAS_DISHES", "Cleanup: has dishes?"),
			toWashing,
			manual("CLEANUP_MORE_DISHES", "Cleanup: more dishes remaining?"),
		}, nil

	case TaskBilling:
		toOperator1, err := p.nav(ctx, robotID, "OPERATOR", "main", "NAVIGATE", "Billing: go to operator")
		if err != nil {
			return nil, err
		}
		toTable, err := p.nav(ctx, robotID, "TABLE", task.TargetRef, "NAVIGATE", fmt.Sprintf("Billing: go to table %s", task.TargetRef))
		if err != nil {
			return nil, err
		}
		toOperator2, err := p.nav(ctx, robotID, "OPERATOR", "main", "NAVIGATE", "Billing: return to operator")
		if err != nil {
			return nil, err
		}
		return []plannedStep{
			toOperator1,
			manual("BILLING_READY", "Billing: operator prepared bill"),
			toTable,
			manual("BILLING_COLLECTED", "Billing: payment collected"),
			toOperator2,
			manual("BILLING_DONE", "Billing: completed"),
		}, nil

	default:
		return nil, &ferrors.InvalidArgumentError{Field: "task_type", Message: fmt.Sprintf("unsupported task type %q", task.TaskType)}
	}
}

// nav resolves a NAVIGATE step's POI and returns it as a plannedStep, or
// an InvalidArgumentError if resolution fails.
func (p *Planner) nav(ctx context.Context, robotID, kind, ref, stepCode, label string) (plannedStep, error) {
	poi, err := p.resolver.Resolve(ctx, robotID, kind, ref)
	if err != nil {
		return plannedStep{}, err
	}
	if poi == nil {
		return plannedStep{}, &ferrors.InvalidArgumentError{
			Field:   "target",
			Message: fmt.Sprintf("could not resolve POI for kind=%s ref=%s", kind, ref),
		}
	}
	return plannedStep{
		StepType:   StepNavigate,
		StepCode:   stepCode,
		Label:      label,
		AreaID:     poi.AreaID,
		X:          poi.X,
		Y:          poi.Y,
		Yaw:        poi.Yaw,
		StopRadius: 1.0,
	}, nil
}

func manual(stepCode, label string) plannedStep {
	return plannedStep{StepType: StepManualConfirm, StepCode: stepCode, Label: label}
}
