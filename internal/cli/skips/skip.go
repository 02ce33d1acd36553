package skips

import (
	"fmt"
	"text/tabwriter"

	"github.com/julianstephens/fieldcall/internal/cli"
)

type SkipSetCmd struct {
	Start  string `arg:"" help:"First skipped date (YYYY-MM-DD, today, tomorrow)."`
	End    string `arg:"" optional:"" help:"Last skipped date, inclusive. Defaults to the start date."`
	Reason string `help:"Why the agent is out (leave, training, ...)."`
}

func (c *SkipSetCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	start, err := ctx.Engine.ResolveDate(c.Start)
	if err != nil {
		return err
	}
	end := start
	if c.End != "" {
		if end, err = ctx.Engine.ResolveDate(c.End); err != nil {
			return err
		}
	}
	p, err := ctx.Engine.SetSkipPeriod(ctx.Context(), agent, start, end, c.Reason)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Skip period %s set: %s to %s\n", p.ID, p.StartDate, p.EndDate)
	return nil
}

type SkipCancelCmd struct {
	ID string `arg:"" help:"Skip period id."`
}

func (c *SkipCancelCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	p, err := ctx.Engine.CancelSkipPeriod(ctx.Context(), agent, c.ID)
	if err != nil {
		return err
	}
	ctx.Printf("✓ Skip period %s cancelled\n", p.ID)
	return nil
}

type SkipListCmd struct {
	All bool `help:"Include cancelled periods."`
}

func (c *SkipListCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	periods, err := ctx.Engine.ListSkipPeriods(ctx.Context(), agent)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(ctx.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTART\tEND\tREASON\tSTATE")
	shown := 0
	for _, p := range periods {
		state := "active"
		if p.IsCancelled() {
			if !c.All {
				continue
			}
			state = "cancelled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.StartDate, p.EndDate, p.Reason, state)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if shown == 0 {
		ctx.Println("No skip periods.")
	}
	return nil
}

type SkipCmd struct {
	Set    SkipSetCmd    `cmd:"" help:"Suspend call lists over a date range."`
	Cancel SkipCancelCmd `cmd:"" help:"Cancel a skip period."`
	List   SkipListCmd   `cmd:"" help:"List skip periods."`
}
