package models

import (
	"fmt"
	"strings"
	"time"
)

type ActivityType string

const (
	ActivityOutboundCalls         ActivityType = "Outbound calls"
	ActivityInboundInquiry        ActivityType = "Inbound inquiry"
	ActivityQuotationPreparation  ActivityType = "Quotation Preparation"
	ActivitySalesOrderPreparation ActivityType = "Sales Order Preparation"
)

var ActivityTypes = []ActivityType{
	ActivityOutboundCalls,
	ActivityInboundInquiry,
	ActivityQuotationPreparation,
	ActivitySalesOrderPreparation,
}

type Status string

const (
	StatusOnProgress Status = "On Progress"
	StatusAssisted   Status = "Assisted"
	StatusQuoteDone  Status = "Quote-Done"
	StatusSODone     Status = "SO-Done"
	StatusDelivered  Status = "Delivered"
	StatusCollected  Status = "Collected"
	StatusCancelled  Status = "Cancelled"
	StatusLoss       Status = "Loss"
)

var Statuses = []Status{
	StatusOnProgress, StatusAssisted, StatusQuoteDone, StatusSODone,
	StatusDelivered, StatusCollected, StatusCancelled, StatusLoss,
}

// Rank orders the progression chain. Cancelled and Loss sit outside it and
// report -1.
func (s Status) Rank() int {
	switch s {
	case StatusOnProgress:
		return 0
	case StatusAssisted:
		return 1
	case StatusQuoteDone:
		return 2
	case StatusSODone:
		return 3
	case StatusDelivered:
		return 4
	case StatusCollected:
		return 5
	}
	return -1
}

// IsTerminal reports whether the status ends the outreach.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCollected, StatusCancelled, StatusLoss:
		return true
	}
	return false
}

// IsClosed reports whether the status accepts no further updates.
// Delivered is terminal but may still move on to Collected.
func (s Status) IsClosed() bool {
	return s.IsTerminal() && s != StatusDelivered
}

type CallStatus string

const (
	CallSuccessful   CallStatus = "Successful"
	CallUnsuccessful CallStatus = "Unsuccessful"
)

// Outcome is the "typecall" sub-classification recorded with an update.
type Outcome string

const (
	OutcomeNoRequirements           Outcome = "No Requirements"
	OutcomeWaitingForFutureProjects Outcome = "Waiting for Future Projects"
	OutcomeWithRFQ                  Outcome = "With RFQ"
	OutcomeRingingOnly              Outcome = "Ringing Only"
	OutcomeCannotBeReached          Outcome = "Cannot Be Reached"
	OutcomeNotConnected             Outcome = "Not Connected with the Company"

	OutcomeSentQuotationStandard     Outcome = "Sent Quotation - Standard"
	OutcomeSentQuotationSpecialPrice Outcome = "Sent Quotation - With Special Price"
	OutcomeSentQuotationSPF          Outcome = "Sent Quotation - With SPF"
	OutcomeWithSPFS                  Outcome = "With SPFS"
	OutcomeWaitingForProjects        Outcome = "Waiting for Projects"
)

// CallOutcomes maps a call status to the outcomes an outbound call may record.
var CallOutcomes = map[CallStatus][]Outcome{
	CallSuccessful:   {OutcomeNoRequirements, OutcomeWaitingForFutureProjects, OutcomeWithRFQ},
	CallUnsuccessful: {OutcomeRingingOnly, OutcomeCannotBeReached, OutcomeNotConnected},
}

// QuotationOutcomes are the outcomes a quotation preparation may record.
var QuotationOutcomes = []Outcome{
	OutcomeSentQuotationStandard,
	OutcomeSentQuotationSpecialPrice,
	OutcomeSentQuotationSPF,
	OutcomeWithSPFS,
	OutcomeWaitingForProjects,
}

type CustomerType string

const (
	CustomerEndUser    CustomerType = "End User"
	CustomerReseller   CustomerType = "Reseller"
	CustomerContractor CustomerType = "Contractor"
)

var CustomerTypes = []CustomerType{CustomerEndUser, CustomerReseller, CustomerContractor}

type OrderType string

const (
	OrderStock   OrderType = "Stock"
	OrderIndent  OrderType = "Indent"
	OrderProject OrderType = "Project"
)

var OrderTypes = []OrderType{OrderStock, OrderIndent, OrderProject}

// CompanySnapshot is copied into the activity so later company edits do not
// rewrite history.
type CompanySnapshot struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Address       string `json:"address,omitempty"`
}

type QuotationDetails struct {
	Number       string       `json:"number"`
	Products     []string     `json:"products"`
	CustomerType CustomerType `json:"customer_type"`
}

type SalesOrderDetails struct {
	Number    string    `json:"number"`
	Amount    float64   `json:"amount"`
	OrderType OrderType `json:"order_type"`
}

type DeliveryDetails struct {
	PaymentTerm  string    `json:"payment_term"`
	ActualSales  float64   `json:"actual_sales"`
	DRNumber     string    `json:"dr_number"`
	DeliveryDate time.Time `json:"delivery_date"`
}

type Activity struct {
	ID           string             `json:"id"`
	AgentID      string             `json:"agent_id"`
	CompanyID    string             `json:"company_id,omitempty"`
	Company      CompanySnapshot    `json:"company"`
	Type         ActivityType       `json:"type"`
	Status       Status             `json:"status"`
	CallStatus   CallStatus         `json:"call_status,omitempty"`
	Outcome      Outcome            `json:"outcome,omitempty"`
	FollowUpDate *time.Time         `json:"followup_date,omitempty"`
	Callback     *time.Time         `json:"callback,omitempty"`
	Quotation    *QuotationDetails  `json:"quotation,omitempty"`
	SalesOrder   *SalesOrderDetails `json:"sales_order,omitempty"`
	Delivery     *DeliveryDetails   `json:"delivery,omitempty"`
	Remarks      string             `json:"remarks,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	DueAt        *time.Time         `json:"due_at,omitempty"`
	DueExpiresAt *time.Time         `json:"due_expires_at,omitempty"`
	SurveySentAt *time.Time         `json:"survey_sent_at,omitempty"`
	Version      int                `json:"version"`
}

// IsOpen reports whether the activity can still surface as due.
func (a Activity) IsOpen() bool {
	return !a.Status.IsTerminal()
}

// ParseActivityType resolves an activity type name case-insensitively.
func ParseActivityType(s string) (ActivityType, error) {
	return parseEnum(s, ActivityTypes, "activity type")
}

func ParseStatus(s string) (Status, error) {
	return parseEnum(s, Statuses, "status")
}

func ParseCallStatus(s string) (CallStatus, error) {
	return parseEnum(s, []CallStatus{CallSuccessful, CallUnsuccessful}, "call status")
}

func ParseOutcome(s string) (Outcome, error) {
	all := append(append([]Outcome{}, CallOutcomes[CallSuccessful]...), CallOutcomes[CallUnsuccessful]...)
	return parseEnum(s, append(all, QuotationOutcomes...), "outcome")
}

func ParseCustomerType(s string) (CustomerType, error) {
	return parseEnum(s, CustomerTypes, "customer type")
}

func ParseOrderType(s string) (OrderType, error) {
	return parseEnum(s, OrderTypes, "order type")
}

func parseEnum[T ~string](s string, values []T, what string) (T, error) {
	s = strings.TrimSpace(s)
	for _, v := range values {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", what, s)
}

// Clone returns a deep copy of the activity.
func (a Activity) Clone() Activity {
	c := a
	c.FollowUpDate = cloneTime(a.FollowUpDate)
	c.Callback = cloneTime(a.Callback)
	c.DueAt = cloneTime(a.DueAt)
	c.DueExpiresAt = cloneTime(a.DueExpiresAt)
	c.SurveySentAt = cloneTime(a.SurveySentAt)
	if a.Quotation != nil {
		q := *a.Quotation
		q.Products = append([]string(nil), a.Quotation.Products...)
		c.Quotation = &q
	}
	if a.SalesOrder != nil {
		so := *a.SalesOrder
		c.SalesOrder = &so
	}
	if a.Delivery != nil {
		d := *a.Delivery
		c.Delivery = &d
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
