package companies

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/julianstephens/fieldcall/internal/cli"
	"github.com/julianstephens/fieldcall/internal/eligibility"
	"github.com/julianstephens/fieldcall/internal/models"
)

type CompanyAddCmd struct {
	Name          string `arg:"" help:"Company name."`
	Tier          string `required:"" help:"Account tier (Top50, Next30, Balance20, TSA, CSR)."`
	ID            string `help:"Company id. Generated when omitted."`
	Contact       string `help:"Contact person."`
	Email         string `help:"Email address used for post-delivery surveys."`
	Phone         string `help:"Phone number."`
	Address       string `help:"Address."`
	LastContacted string `help:"Last contact as YYYY-MM-DD [HH:MM]."`
}

func (c *CompanyAddCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	tier, err := models.ParseTier(c.Tier)
	if err != nil {
		return err
	}
	company := models.Company{
		ID:            strings.TrimSpace(c.ID),
		Name:          strings.TrimSpace(c.Name),
		Tier:          tier,
		AgentID:       agent,
		ContactPerson: c.Contact,
		Email:         strings.TrimSpace(c.Email),
		Phone:         c.Phone,
		Address:       c.Address,
	}
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	if c.LastContacted != "" {
		t, err := cli.ParseTimestamp(c.LastContacted, ctx.Location())
		if err != nil {
			return err
		}
		company.LastContacted = &t
	}

	if err := ctx.Engine.Registry().SaveCompany(ctx.Context(), company); err != nil {
		return err
	}
	ctx.Printf("✓ Saved company %s (%s, %s)\n", company.Name, company.Tier, company.ID)
	return nil
}

type CompanyListCmd struct {
	Tier         string `help:"Only list this tier."`
	EligibleOnly bool   `help:"Only list companies eligible for today's call list."`
}

func (c *CompanyListCmd) Run(ctx *cli.Context) error {
	agent, err := ctx.AgentID()
	if err != nil {
		return err
	}
	var tier models.Tier
	if c.Tier != "" {
		if tier, err = models.ParseTier(c.Tier); err != nil {
			return err
		}
	}

	list, err := ctx.Engine.Registry().ListCompanies(ctx.Context(), agent)
	if err != nil {
		return err
	}
	now := ctx.Engine.Now()

	w := tabwriter.NewWriter(ctx.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIER\tLAST CONTACTED\tELIGIBLE")
	shown := 0
	for _, co := range list {
		if tier != "" && co.Tier != tier {
			continue
		}
		ok := eligibility.IsDue(co, now.In(ctx.Location()))
		if c.EligibleOnly && !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n", co.ID, co.Name, co.Tier, cli.FormatTime(co.LastContacted, ctx.Location()), ok)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if shown == 0 {
		ctx.Println("No companies found.")
	}
	return nil
}

type CompanyCmd struct {
	Add  CompanyAddCmd  `cmd:"" help:"Add or update a company in the registry."`
	List CompanyListCmd `cmd:"" help:"List the agent's companies."`
}
