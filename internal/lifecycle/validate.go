package lifecycle

import (
	"errors"
	"slices"
	"strings"

	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/models"
)

var errNoDispatcher = errors.New("no survey dispatcher configured")

// typeFloor is the status an activity type moves to once its fields are in.
var typeFloor = map[models.ActivityType]models.Status{
	models.ActivityQuotationPreparation:  models.StatusQuoteDone,
	models.ActivitySalesOrderPreparation: models.StatusSODone,
}

// Validate checks the merged activity next against the transition from cur
// and returns the destination status. requested may be empty, in which case
// the destination is derived from the activity type.
//
// The first offending field is reported.
func Validate(cur, next models.Activity, requested models.Status) (models.Status, error) {
	if cur.Status.IsClosed() {
		return "", apperrors.Invalid("status", "activity is %s and accepts no further updates", cur.Status)
	}
	if err := checkEnums(next); err != nil {
		return "", err
	}
	if err := checkRetype(cur.Type, next.Type); err != nil {
		return "", err
	}

	dest, err := destination(cur.Status, next.Type, requested)
	if err != nil {
		return "", err
	}

	// Giving up on an activity never needs the type fields.
	if dest == models.StatusCancelled || dest == models.StatusLoss {
		return dest, nil
	}

	if err := checkType(next); err != nil {
		return "", err
	}
	if err := checkStage(next, dest); err != nil {
		return "", err
	}
	if dest == models.StatusDelivered || dest == models.StatusCollected {
		if err := checkDelivery(next.Delivery); err != nil {
			return "", err
		}
		if dest == models.StatusDelivered && cur.Status != models.StatusDelivered && strings.TrimSpace(next.Company.Email) == "" {
			return "", apperrors.Missing("company_email")
		}
	}
	return dest, nil
}

// stage orders activity types by how far into the sale they start.
func stage(t models.ActivityType) int {
	switch t {
	case models.ActivityQuotationPreparation:
		return 1
	case models.ActivitySalesOrderPreparation:
		return 2
	}
	return 0
}

// checkRetype allows an activity to be promoted to a later-stage type, never
// demoted.
func checkRetype(from, to models.ActivityType) error {
	if from == to {
		return nil
	}
	if !slices.Contains(models.ActivityTypes, to) {
		return apperrors.Invalid("type", "unknown activity type %q", to)
	}
	if stage(to) <= stage(from) {
		return apperrors.Invalid("type", "%s activities cannot become %s", from, to)
	}
	return nil
}

// checkEnums rejects call statuses and outcomes outside the known sets,
// whatever the destination.
func checkEnums(a models.Activity) error {
	if a.CallStatus != "" {
		if _, ok := models.CallOutcomes[a.CallStatus]; !ok {
			return apperrors.Invalid("call_status", "unknown call status %q", a.CallStatus)
		}
	}
	if a.Outcome != "" {
		if o, err := models.ParseOutcome(string(a.Outcome)); err != nil || o != a.Outcome {
			return apperrors.Invalid("outcome", "unknown outcome %q", a.Outcome)
		}
	}
	return nil
}

// checkStage requires the quotation details at or past Quote-Done and the
// sales order at or past SO-Done, whatever the type. Sales order
// preparations start at SO-Done and carry no quotation.
func checkStage(a models.Activity, dest models.Status) error {
	if dest.Rank() >= models.StatusQuoteDone.Rank() && a.Type != models.ActivitySalesOrderPreparation {
		if err := checkQuotationDetails(a.Quotation); err != nil {
			return err
		}
	}
	if dest.Rank() >= models.StatusSODone.Rank() {
		return checkSalesOrder(a.SalesOrder)
	}
	return nil
}

func destination(status models.Status, typ models.ActivityType, requested models.Status) (models.Status, error) {
	floor, hasFloor := typeFloor[typ]

	dest := status
	if requested == "" {
		if hasFloor && status.Rank() < floor.Rank() {
			dest = floor
		}
	} else {
		parsed, err := models.ParseStatus(string(requested))
		if err != nil {
			return "", apperrors.Invalid("status", "%v", err)
		}
		dest = parsed
	}

	if status == models.StatusDelivered && dest != models.StatusCollected {
		return "", apperrors.Invalid("status", "a delivered activity may only move to %s", models.StatusCollected)
	}
	if dest == models.StatusCancelled || dest == models.StatusLoss {
		return dest, nil
	}
	if dest.Rank() < status.Rank() {
		return "", apperrors.Invalid("status", "cannot move back from %s to %s", status, dest)
	}
	if dest == models.StatusCollected && status != models.StatusDelivered {
		return "", apperrors.Invalid("status", "only a delivered activity may move to %s", models.StatusCollected)
	}
	if hasFloor && dest.Rank() < floor.Rank() {
		return "", apperrors.Invalid("status", "%s activities move to %s", typ, floor)
	}
	return dest, nil
}

func checkType(a models.Activity) error {
	switch a.Type {
	case models.ActivityOutboundCalls:
		return checkCall(a)
	case models.ActivityInboundInquiry:
		return nil
	case models.ActivityQuotationPreparation:
		return checkQuotation(a)
	case models.ActivitySalesOrderPreparation:
		return checkSalesOrder(a.SalesOrder)
	}
	return apperrors.Invalid("type", "unknown activity type %q", a.Type)
}

func checkCall(a models.Activity) error {
	if a.CallStatus == "" {
		return apperrors.Missing("call_status")
	}
	allowed, ok := models.CallOutcomes[a.CallStatus]
	if !ok {
		return apperrors.Invalid("call_status", "unknown call status %q", a.CallStatus)
	}
	if a.Outcome == "" {
		return apperrors.Missing("outcome")
	}
	if !slices.Contains(allowed, a.Outcome) {
		return apperrors.Invalid("outcome", "%q is not a %s call outcome", a.Outcome, a.CallStatus)
	}
	if a.FollowUpDate == nil || a.FollowUpDate.IsZero() {
		return apperrors.Missing("followup_date")
	}
	return nil
}

func checkQuotation(a models.Activity) error {
	if err := checkQuotationDetails(a.Quotation); err != nil {
		return err
	}
	if a.Outcome == "" {
		return apperrors.Missing("outcome")
	}
	if !slices.Contains(models.QuotationOutcomes, a.Outcome) {
		return apperrors.Invalid("outcome", "%q is not a quotation outcome", a.Outcome)
	}
	return nil
}

func checkQuotationDetails(q *models.QuotationDetails) error {
	if q == nil || strings.TrimSpace(q.Number) == "" {
		return apperrors.Missing("quotation_number")
	}
	if !slices.ContainsFunc(q.Products, func(p string) bool { return strings.TrimSpace(p) != "" }) {
		return apperrors.Missing("products")
	}
	if q.CustomerType == "" {
		return apperrors.Missing("customer_type")
	}
	if !slices.Contains(models.CustomerTypes, q.CustomerType) {
		return apperrors.Invalid("customer_type", "unknown customer type %q", q.CustomerType)
	}
	return nil
}

func checkSalesOrder(so *models.SalesOrderDetails) error {
	if so == nil || strings.TrimSpace(so.Number) == "" {
		return apperrors.Missing("so_number")
	}
	if so.Amount <= 0 {
		return apperrors.Missing("amount")
	}
	if so.OrderType == "" {
		return apperrors.Missing("order_type")
	}
	if !slices.Contains(models.OrderTypes, so.OrderType) {
		return apperrors.Invalid("order_type", "unknown order type %q", so.OrderType)
	}
	return nil
}

func checkDelivery(d *models.DeliveryDetails) error {
	if d == nil || strings.TrimSpace(d.PaymentTerm) == "" {
		return apperrors.Missing("payment_term")
	}
	if d.ActualSales <= 0 {
		return apperrors.Missing("actual_sales")
	}
	if strings.TrimSpace(d.DRNumber) == "" {
		return apperrors.Missing("dr_number")
	}
	if d.DeliveryDate.IsZero() {
		return apperrors.Missing("delivery_date")
	}
	return nil
}
