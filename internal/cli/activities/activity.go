package activities

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/engine"
	apperrors "github.com/julianstephens/fieldcall/internal/errors"
	"github.com/julianstephens/fieldcall/internal/lifecycle"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/storage"
)

type ActivityCreateCmd struct {
	Type      string `required:"" help:"Outbound calls, Inbound inquiry, Quotation Preparation or Sales Order Preparation."`
	Company   string `help:"Registry company id."`
	QuotaDate string `help:"Take the company from this day's call list (YYYY-MM-DD, today)."`
	Name      string `help:"Company name for an ad-hoc activity."`
	Contact   string `help:"Contact person for an ad-hoc activity."`
	Email     string `help:"Email for an ad-hoc activity."`
	Phone     string `help:"Phone for an ad-hoc activity."`
	Address   string `help:"Address for an ad-hoc activity."`
	Callback  string `help:"Callback time, YYYY-MM-DD [HH:MM]."`
	Remarks   string `help:"Free-form remarks."`
}

func (c *ActivityCreateCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	typ, err := models.ParseActivityType(c.Type)
	if err != nil {
		return apperrors.Invalid("type", "%v", err)
	}
	req := engine.CreateActivityRequest{
		AgentID:   agent,
		Type:      typ,
		CompanyID: strings.TrimSpace(c.Company),
		Company: models.CompanySnapshot{
			Name:          strings.TrimSpace(c.Name),
			ContactPerson: c.Contact,
			Email:         strings.TrimSpace(c.Email),
			Phone:         c.Phone,
			Address:       c.Address,
		},
		Remarks: c.Remarks,
	}
	if c.QuotaDate != "" {
		if req.QuotaDate, err = ctx.Engine.ResolveDate(c.QuotaDate); err != nil {
			return err
		}
	}
	if c.Callback != "" {
		t, err := cli.ParseTimestamp(c.Callback, ctx.Location())
		if err != nil {
			return apperrors.Invalid("callback", "%v", err)
		}
		req.Callback = &t
	}

	a, err := ctx.Engine.CreateActivity(ctx.Context(), req)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Created activity %s (%s, %s)\n", a.ID, a.Type, a.Company.Name)
	return nil
}

type ActivityUpdateCmd struct {
	ID              string   `arg:"" help:"Activity id."`
	Type            string   `help:"Promote to a later-stage type: Quotation Preparation or Sales Order Preparation."`
	Status          string   `help:"Requested status. Omit to keep the current one."`
	CallStatus      string   `help:"Successful or Unsuccessful."`
	Outcome         string   `help:"Call or quotation outcome."`
	Followup        string   `help:"Follow-up date, YYYY-MM-DD [HH:MM]."`
	QuotationNumber string   `help:"Quotation number."`
	Products        []string `help:"Quoted products."`
	CustomerType    string   `help:"End User, Reseller or Contractor."`
	SONumber        string   `name:"so-number" help:"Sales order number."`
	Amount          float64  `help:"Sales order amount."`
	OrderType       string   `help:"Stock, Indent or Project."`
	PaymentTerm     string   `help:"Payment term."`
	ActualSales     float64  `help:"Delivered sales amount."`
	DRNumber        string   `name:"dr-number" help:"Delivery receipt number."`
	DeliveryDate    string   `help:"Delivery date, YYYY-MM-DD [HH:MM]."`
	Remarks         string   `help:"Free-form remarks."`
	Version         int      `default:"-1" help:"Reject the update unless the stored version matches."`
}

func (c *ActivityUpdateCmd) Run(ctx *cli.Context) error {
	cur, err := ctx.Engine.GetActivity(ctx.Context(), c.ID)
	if err != nil {
		return err
	}
	u, err := c.update(cur, ctx)
	if err != nil {
		return err
	}
	a, err := ctx.Engine.UpdateActivityStatus(ctx.Context(), u)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Activity %s is %s (version %d)\n", a.ID, a.Status, a.Version)
	if a.DueAt != nil {
		ctx.Printf("  Follow-up due %s\n", cli.FormatTime(a.DueAt, ctx.Location()))
	}
	if a.SurveySentAt != nil && cur.SurveySentAt == nil {
		ctx.Printf("  Survey sent to %s\n", a.Company.Email)
	}
	return nil
}

// update turns the flags into a lifecycle.Update. Detail groups are overlaid
// on what the activity already stores.
func (c *ActivityUpdateCmd) update(cur models.Activity, ctx *cli.Context) (lifecycle.Update, error) {
	loc := ctx.Location()
	u := lifecycle.Update{ActivityID: c.ID, Version: version(c.Version), Remarks: c.Remarks}
	var err error

	if c.Type != "" {
		if u.Type, err = models.ParseActivityType(c.Type); err != nil {
			return u, apperrors.Invalid("type", "%v", err)
		}
	}
	if c.Status != "" {
		if u.Status, err = models.ParseStatus(c.Status); err != nil {
			return u, apperrors.Invalid("status", "%v", err)
		}
	}
	if c.CallStatus != "" {
		if u.CallStatus, err = models.ParseCallStatus(c.CallStatus); err != nil {
			return u, apperrors.Invalid("call_status", "%v", err)
		}
	}
	if c.Outcome != "" {
		if u.Outcome, err = models.ParseOutcome(c.Outcome); err != nil {
			return u, apperrors.Invalid("outcome", "%v", err)
		}
	}
	if c.Followup != "" {
		t, err := cli.ParseTimestamp(c.Followup, loc)
		if err != nil {
			return u, apperrors.Invalid("followup_date", "%v", err)
		}
		u.FollowUpDate = &t
	}

	if c.QuotationNumber != "" || len(c.Products) > 0 || c.CustomerType != "" {
		q := models.QuotationDetails{}
		if cur.Quotation != nil {
			q = *cur.Quotation
		}
		if c.QuotationNumber != "" {
			q.Number = c.QuotationNumber
		}
		if len(c.Products) > 0 {
			q.Products = c.Products
		}
		if c.CustomerType != "" {
			if q.CustomerType, err = models.ParseCustomerType(c.CustomerType); err != nil {
				return u, apperrors.Invalid("customer_type", "%v", err)
			}
		}
		u.Quotation = &q
	}

	if c.SONumber != "" || c.Amount != 0 || c.OrderType != "" {
		so := models.SalesOrderDetails{}
		if cur.SalesOrder != nil {
			so = *cur.SalesOrder
		}
		if c.SONumber != "" {
			so.Number = c.SONumber
		}
		if c.Amount != 0 {
			so.Amount = c.Amount
		}
		if c.OrderType != "" {
			if so.OrderType, err = models.ParseOrderType(c.OrderType); err != nil {
				return u, apperrors.Invalid("order_type", "%v", err)
			}
		}
		u.SalesOrder = &so
	}

	if c.PaymentTerm != "" || c.ActualSales != 0 || c.DRNumber != "" || c.DeliveryDate != "" {
		d := models.DeliveryDetails{}
		if cur.Delivery != nil {
			d = *cur.Delivery
		}
		if c.PaymentTerm != "" {
			d.PaymentTerm = c.PaymentTerm
		}
		if c.ActualSales != 0 {
			d.ActualSales = c.ActualSales
		}
		if c.DRNumber != "" {
			d.DRNumber = c.DRNumber
		}
		if c.DeliveryDate != "" {
			t, err := cli.ParseTimestamp(c.DeliveryDate, loc)
			if err != nil {
				return u, apperrors.Invalid("delivery_date", "%v", err)
			}
			d.DeliveryDate = t
		}
		u.Delivery = &d
	}
	return u, nil
}

type ActivityCallbackCmd struct {
	ID      string `arg:"" help:"Activity id."`
	At      string `help:"Callback time, YYYY-MM-DD [HH:MM]." xor:"callback"`
	Clear   bool   `help:"Remove the callback." xor:"callback"`
	Version int    `default:"-1" help:"Reject the change unless the stored version matches."`
}

func (c *ActivityCallbackCmd) Run(ctx *cli.Context) error {
	if c.At == "" && !c.Clear {
		return apperrors.Missing("at")
	}
	var at *time.Time
	if !c.Clear {
		t, err := cli.ParseTimestamp(c.At, ctx.Location())
		if err != nil {
			return apperrors.Invalid("callback", "%v", err)
		}
		at = &t
	}
	a, err := ctx.Engine.SetCallback(ctx.Context(), c.ID, at, version(c.Version))
	if err != nil {
		return err
	}
	if a.Callback == nil {
		ctx.Printf("✓ Callback cleared on %s\n", a.ID)
		return nil
	}
	ctx.Printf("✓ Callback for %s set to %s\n", a.ID, cli.FormatTime(a.Callback, ctx.Location()))
	return nil
}

type ActivityRemoveCmd struct {
	ID string `arg:"" help:"Activity id."`
}

func (c *ActivityRemoveCmd) Run(ctx *cli.Context) error {
	a, err := ctx.Engine.GetActivity(ctx.Context(), c.ID)
	if err != nil {
		return err
	}
	ctx.PerformAutomaticBackup()
	if err := ctx.Engine.RemoveActivity(ctx.Context(), a.ID); err != nil {
		return err
	}
	ctx.Printf("✓ Removed activity %s (%s)\n", a.ID, a.Company.Name)
	return nil
}

type ActivityShowCmd struct {
	ID string `arg:"" help:"Activity id."`
}

func (c *ActivityShowCmd) Run(ctx *cli.Context) error {
	a, err := ctx.Engine.GetActivity(ctx.Context(), c.ID)
	if err != nil {
		return err
	}
	loc := ctx.Location()
	w := tabwriter.NewWriter(ctx.Writer(), 0, 0, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(w, "%s:\t%s\n", k, v)
		}
	}
	row("ID", a.ID)
	row("Agent", a.AgentID)
	row("Company", a.Company.Name)
	row("Company ID", a.CompanyID)
	row("Email", a.Company.Email)
	row("Type", string(a.Type))
	row("Status", string(a.Status))
	row("Call status", string(a.CallStatus))
	row("Outcome", string(a.Outcome))
	if a.FollowUpDate != nil {
		row("Follow-up date", cli.FormatTime(a.FollowUpDate, loc))
	}
	if a.Callback != nil {
		row("Callback", cli.FormatTime(a.Callback, loc))
	}
	if q := a.Quotation; q != nil {
		row("Quotation", fmt.Sprintf("%s (%s) %s", q.Number, q.CustomerType, strings.Join(q.Products, ", ")))
	}
	if so := a.SalesOrder; so != nil {
		row("Sales order", fmt.Sprintf("%s %.2f (%s)", so.Number, so.Amount, so.OrderType))
	}
	if d := a.Delivery; d != nil {
		row("Delivery", fmt.Sprintf("%s %.2f %s on %s", d.DRNumber, d.ActualSales, d.PaymentTerm, d.DeliveryDate.In(loc).Format(constants.DateFormat)))
	}
	row("Remarks", a.Remarks)
	if a.DueAt != nil {
		row("Due", cli.FormatTime(a.DueAt, loc))
	}
	if a.DueExpiresAt != nil {
		row("Due expires", cli.FormatTime(a.DueExpiresAt, loc))
	}
	if a.SurveySentAt != nil {
		row("Survey sent", cli.FormatTime(a.SurveySentAt, loc))
	}
	row("Created", cli.FormatTime(&a.CreatedAt, loc))
	row("Updated", cli.FormatTime(&a.UpdatedAt, loc))
	row("Version", fmt.Sprint(a.Version))
	return w.Flush()
}

type ActivityListCmd struct {
	Open      bool `help:"Only list activities that are still open."`
	AllAgents bool `help:"List every agent's activities."`
}

func (c *ActivityListCmd) Run(ctx *cli.Context) error {
	filter := storage.ActivityFilter{OpenOnly: c.Open}
	if !c.AllAgents {
		agent, err := ctx.AgentID()
		if err != nil {
			return err
		}
		filter.AgentIDs = []string{agent}
	}
	list, err := ctx.Engine.ListActivities(ctx.Context(), filter)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		ctx.Println("No activities found.")
		return nil
	}

	loc := ctx.Location()
	w := tabwriter.NewWriter(ctx.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAGENT\tCOMPANY\tTYPE\tSTATUS\tOUTCOME\tDUE\tCREATED")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.AgentID, a.Company.Name, a.Type, a.Status, dash(string(a.Outcome)),
			cli.FormatTime(a.DueAt, loc), a.CreatedAt.In(loc).Format(constants.DateFormat))
	}
	return w.Flush()
}

type ActivityCmd struct {
	Create   ActivityCreateCmd   `cmd:"" help:"Start an activity from the call list, the registry or ad hoc."`
	Update   ActivityUpdateCmd   `cmd:"" help:"Record an outcome or move an activity forward."`
	Callback ActivityCallbackCmd `cmd:"" help:"Set or clear an activity's callback."`
	Remove   ActivityRemoveCmd   `cmd:"" aliases:"rm" help:"Delete an activity."`
	Show     ActivityShowCmd     `cmd:"" help:"Show one activity."`
	List     ActivityListCmd     `cmd:"" aliases:"ls" help:"List activities."`
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// version maps the -1 flag default to "no check".
func version(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}
