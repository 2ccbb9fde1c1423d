package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/warp/wallet-ledger/api"
	"github.com/warp/wallet-ledger/app"
	"github.com/warp/wallet-ledger/config"
	"github.com/warp/wallet-ledger/ledger"
	"github.com/warp/wallet-ledger/logging"
)

var commands = []subcommands.Command{
	&seedCmd{},
	&ratesCmd{},
	&auditCmd{},
	&householdCmd{},
	&tokenCmd{},
}

// open assembles the ledger from the environment. seed controls catalog
// seeding regardless of SEED_CATALOG.
func open(ctx context.Context, seed bool) (*app.App, error) {
	cfg := config.Load()
	cfg.SeedCatalog = seed
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}

// =============================================================================
// seed
// =============================================================================

type seedCmd struct{}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "creates or updates the category catalog" }
func (*seedCmd) Usage() string {
	return `ledgerctl seed

  Upserts the default categories and subcategories, including the reserved
  ones the ledger needs to start. Running it twice changes nothing.
`
}
func (*seedCmd) SetFlags(*flag.FlagSet) {}

func (*seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, true)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	cats, err := a.Engine.ListCategories(ctx)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Printf("catalog has %d categories\n", len(cats))
	return subcommands.ExitSuccess
}

// =============================================================================
// rates
// =============================================================================

type ratesCmd struct{}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "fetches and stores a new exchange rate snapshot" }
func (*ratesCmd) Usage() string {
	return `ledgerctl rates

  Fetches USD-based rates from the configured upstream and appends a snapshot.
  Requires EXCHANGE_RATE_API_KEY.
`
}
func (*ratesCmd) SetFlags(*flag.FlagSet) {}

func (*ratesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, false)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	if a.Refresher == nil {
		return fail("EXCHANGE_RATE_API_KEY is not set")
	}
	snap, err := a.Refresher.Refresh(ctx)
	if err != nil {
		return fail("refresh: %v", err)
	}
	fmt.Printf("snapshot %s at %s\n", snap.ID, snap.CreatedAt.Format(time.RFC3339))
	for _, c := range ledger.SupportedCurrencies() {
		if r, ok := snap.Rates[c]; ok {
			fmt.Printf("  %s %s\n", c, r.String())
		}
	}
	return subcommands.ExitSuccess
}

// =============================================================================
// audit
// =============================================================================

type auditCmd struct{}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "re-checks balances and transfers against stored entries" }
func (*auditCmd) Usage() string {
	return `ledgerctl audit

  Verifies that every wallet balance equals the sum of its entries, that no
  balance is negative, that entry signs match their type and that every
  transfer has exactly two legs. Exits 1 when anything is off.
`
}
func (*auditCmd) SetFlags(*flag.FlagSet) {}

func (*auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := open(ctx, false)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	report, err := a.Engine.Audit(ctx)
	if err != nil {
		return fail("audit: %v", err)
	}
	fmt.Printf("checked %d wallets and %d transfers\n", report.WalletsChecked, report.TransfersChecked)
	for _, f := range report.Findings {
		fmt.Printf("  [%s] %s\n", f.Check, f.Message)
	}
	if !report.OK() {
		return subcommands.ExitFailure
	}
	fmt.Println("ledger is consistent")
	return subcommands.ExitSuccess
}

// =============================================================================
// household
// =============================================================================

type householdCmd struct {
	household string
	user      string
}

func (*householdCmd) Name() string     { return "household" }
func (*householdCmd) Synopsis() string { return "adds a user to a household" }
func (*householdCmd) Usage() string {
	return `ledgerctl household -household <household_id> -user <user_id>

  Adds a member to a household. Members can use every wallet of the household.
`
}

func (c *householdCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.household, "household", "", "household id")
	f.StringVar(&c.user, "user", "", "user id")
}

func (c *householdCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.household == "" || c.user == "" {
		return fail("-household and -user are required")
	}
	a, err := open(ctx, false)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	if err := a.Store.AddHouseholdMember(ctx, ledger.HouseholdID(c.household), ledger.UserID(c.user)); err != nil {
		return fail("%v", err)
	}
	fmt.Printf("%s joined %s\n", c.user, c.household)
	return subcommands.ExitSuccess
}

// =============================================================================
// token
// =============================================================================

type tokenCmd struct {
	user string
	ttl  time.Duration
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "signs an API token for a user" }
func (*tokenCmd) Usage() string {
	return `ledgerctl token -user <user_id> [-ttl 24h]

  Prints a bearer token signed with JWT_SECRET.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "user id")
	f.DurationVar(&c.ttl, "ttl", 24*time.Hour, "token lifetime")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		return fail("JWT_SECRET is not set")
	}
	if c.user == "" {
		return fail("-user is required")
	}
	token, err := api.IssueToken(cfg.JWTSecret, ledger.UserID(c.user), c.ttl)
	if err != nil {
		return fail("%v", err)
	}
	fmt.Println(token)
	return subcommands.ExitSuccess
}
