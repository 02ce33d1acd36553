package quotas

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/models"
)

type QuotaShowCmd struct {
	Date string `arg:"" optional:"" default:"today" help:"Date (YYYY-MM-DD, today, tomorrow)."`
}

func (c *QuotaShowCmd) Run(ctx *cli.Context) error {
	agent, date, err := target(ctx, c.Date)
	if err != nil {
		return err
	}
	q, err := ctx.Engine.GetOrCreateQuota(ctx.Context(), agent, date)
	if err != nil {
		return err
	}
	return printQuota(ctx, q)
}

type QuotaConsumeCmd struct {
	Company string `arg:"" help:"Company id to mark as called."`
	Date    string `default:"today" help:"Date (YYYY-MM-DD, today, tomorrow)."`
}

func (c *QuotaConsumeCmd) Run(ctx *cli.Context) error {
	agent, date, err := target(ctx, c.Date)
	if err != nil {
		return err
	}
	q, err := ctx.Engine.ConsumeQuotaItem(ctx.Context(), agent, date, c.Company)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Consumed %s, %d remaining\n", c.Company, q.Remaining)
	return nil
}

type QuotaCancelCmd struct {
	Company string `arg:"" help:"Company id to skip today."`
	Date    string `default:"today" help:"Date (YYYY-MM-DD, today, tomorrow)."`
}

func (c *QuotaCancelCmd) Run(ctx *cli.Context) error {
	agent, date, err := target(ctx, c.Date)
	if err != nil {
		return err
	}
	before, err := ctx.Engine.GetOrCreateQuota(ctx.Context(), agent, date)
	if err != nil {
		return err
	}
	q, err := ctx.Engine.CancelQuotaItem(ctx.Context(), agent, date, c.Company)
	if err != nil {
		return err
	}
	if len(q.Assigned) < len(before.Assigned) {
		ctx.Printf("✓ Cancelled %s, no replacement available\n", c.Company)
		return nil
	}
	ctx.Printf("✓ Cancelled %s, replaced with %s\n", c.Company, q.Assigned[len(q.Assigned)-1])
	return nil
}

type QuotaCmd struct {
	Show    QuotaShowCmd    `cmd:"" default:"withargs" help:"Show (and generate on first access) the call list for a day."`
	Consume QuotaConsumeCmd `cmd:"" help:"Mark a call-list company as called."`
	Cancel  QuotaCancelCmd  `cmd:"" help:"Skip a call-list company and draw a replacement."`
}

func target(ctx *cli.Context, date string) (string, string, error) {
	agent, err := ctx.AgentID()
	if err != nil {
		return "", "", err
	}
	d, err := ctx.Engine.ResolveDate(date)
	if err != nil {
		return "", "", err
	}
	return agent, d, nil
}

func printQuota(ctx *cli.Context, q models.DailyQuota) error {
	ctx.Printf("Call list for %s on %s\n", q.AgentID, q.Date)
	switch q.Blocked {
	case models.QuotaBlockSunday:
		ctx.Println("No calls scheduled: Sunday.")
		return nil
	case models.QuotaBlockSkipPeriod:
		ctx.Println("No calls scheduled: skip period.")
		return nil
	}
	ctx.Printf("Target %d, remaining %d, consumed %d, cancelled %d\n\n", q.Target, q.Remaining, len(q.Consumed), len(q.Cancelled))
	if len(q.Assigned) == 0 {
		ctx.Println("No companies left on the list.")
		return nil
	}

	w := tabwriter.NewWriter(ctx.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tNAME\tTIER")
	for i, id := range q.Assigned {
		name, tier := lookup(ctx.Context(), ctx, id)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, id, name, tier)
	}
	return w.Flush()
}

func lookup(c context.Context, ctx *cli.Context, id string) (string, string) {
	co, err := ctx.Engine.Registry().GetCompany(c, id)
	if err != nil {
		return "?", "?"
	}
	return co.Name, string(co.Tier)
}
