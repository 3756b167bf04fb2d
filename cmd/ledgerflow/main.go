package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli"

	"github.com/weisyn/ledger-flow-go/flows"
	"github.com/weisyn/ledger-flow-go/types"
)

func main() {
	app := cli.NewApp()
	app.Name = "ledgerflow"
	app.Version = "v0.1.0"
	app.Usage = "Drive ledger transaction flows: accounts, funding, tokens, allowances, schedules and topics"
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:   "accounts",
			Usage:  "Create accounts when the registry is empty",
			Flags:  []cli.Flag{count},
			Action: withRuntime(runAccounts),
		},
		{
			Name:   "create-account",
			Usage:  "Create one account funded by the operator and append it to the registry",
			Flags:  []cli.Flag{amount},
			Action: withRuntime(runCreateAccount),
		},
		{
			Name:   "fund",
			Usage:  "Transfer a fixed amount from the operator to every registered account",
			Flags:  []cli.Flag{amount},
			Action: withRuntime(runFund),
		},
		{
			Name:   "token",
			Usage:  "Create a token, associate, transfer, pause and unpause",
			Action: withRuntime(runToken),
		},
		{
			Name:   "allowance",
			Usage:  "Approve an allowance and spend it on behalf of the owner",
			Flags:  []cli.Flag{amount},
			Action: withRuntime(runAllowance),
		},
		{
			Name:  "schedule",
			Usage: "Scheduled transfer hand-off between processes",
			Subcommands: []cli.Command{
				{
					Name:   "freeze",
					Usage:  "Freeze a scheduled transfer and print the transaction string",
					Flags:  []cli.Flag{amount},
					Action: withRuntime(runScheduleFreeze),
				},
				{
					Name:      "submit",
					Usage:     "Sign and submit a frozen scheduled transfer",
					ArgsUsage: "<transaction string>",
					Flags:     []cli.Flag{wait},
					Action:    withRuntime(runScheduleSubmit),
				},
				{
					Name:   "demo",
					Usage:  "Freeze and submit in one process",
					Flags:  []cli.Flag{amount, wait},
					Action: withRuntime(runScheduleDemo),
				},
			},
		},
		{
			Name:   "topic",
			Usage:  "Create a topic, submit a message and read it back",
			Flags:  []cli.Flag{message, wait},
			Action: withRuntime(runTopic),
		},
		{
			Name:      "balance",
			Usage:     "Print the balances of an account",
			ArgsUsage: "<account id>",
			Action:    withRuntime(runBalance),
		},
		{
			Name:   "serve",
			Usage:  "Run a simulated ledger over HTTP, WebSocket and gRPC",
			Flags:  []cli.Flag{listen, grpcListen, settleInterval},
			Action: runServe,
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}

func withRuntime(fn func(c *cli.Context, rt *runtime) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		rt, err := newRuntime(c)
		if err != nil {
			return err
		}
		defer rt.Close()
		return fn(c, rt)
	}
}

func runAccounts(c *cli.Context, rt *runtime) error {
	if err := rt.requireOperator(); err != nil {
		return err
	}
	ctx, cancel := rt.context()
	defer cancel()

	accounts, err := flows.BootstrapAccounts(ctx, rt.env, c.Int(count.Name))
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		fmt.Printf("- %s\n", acc.ID)
	}
	return nil
}

func runCreateAccount(c *cli.Context, rt *runtime) error {
	if err := rt.requireOperator(); err != nil {
		return err
	}
	ctx, cancel := rt.context()
	defer cancel()

	res, err := flows.CreateAccount(ctx, rt.env, c.Int64(amount.Name))
	if err != nil {
		return err
	}
	fmt.Printf("The new account ID is: %s\n", res.Account.ID)
	fmt.Printf("The transaction consensus status is %s\n", res.Receipt.Status)
	return nil
}

func runFund(c *cli.Context, rt *runtime) error {
	if err := rt.requireOperator(); err != nil {
		return err
	}
	ctx, cancel := rt.context()
	defer cancel()
	if err := rt.ensureAccounts(ctx, flows.DefaultBootstrapAccounts); err != nil {
		return err
	}

	res, err := flows.FundAccounts(ctx, rt.env, c.Int64(amount.Name))
	if err != nil {
		return err
	}
	for _, r := range res.Receipts {
		fmt.Printf("Receipt: %s (%s)\n", r.Status, r.TransactionID)
	}
	for _, f := range res.Failed {
		fmt.Printf("Failed: %s: %v\n", f.Account, f.Err)
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d transfers failed", len(res.Failed), len(res.Failed)+len(res.Receipts))
	}
	return nil
}

func runToken(_ *cli.Context, rt *runtime) error {
	ctx, cancel := rt.context()
	defer cancel()
	if err := rt.ensureAccounts(ctx, 4); err != nil {
		return err
	}

	opts := flows.DefaultTokenOptions()
	report, err := flows.TokenLifecycle(ctx, rt.env, opts)
	if report != nil && report.TokenID != "" {
		fmt.Printf("- Created token with ID: %s\n", report.TokenID)
	}
	if err != nil {
		return err
	}

	fmt.Printf("- Treasury balance after transfers: %s %s\n",
		types.FormatAmount(report.TreasuryAfterTransfers, uint32(opts.Decimals)), opts.Symbol)
	fmt.Printf("- Transfer while paused: %s\n", report.PausedStatus)
	ids := make([]string, 0, len(report.Balances))
	for id := range report.Balances {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("- %s: %d units of token ID %s\n", id, report.Balances[types.AccountID(id)], report.TokenID)
	}
	return nil
}

func runAllowance(c *cli.Context, rt *runtime) error {
	ctx, cancel := rt.context()
	defer cancel()
	if err := rt.ensureAccounts(ctx, 3); err != nil {
		return err
	}

	amt := c.Int64(amount.Name)
	if amt <= 0 {
		amt = 20
	}
	report, err := flows.AllowanceSpend(ctx, rt.env, amt)
	if err != nil {
		return err
	}
	ids := []types.AccountID{report.Owner, report.Spender, report.Recipient}
	for i, id := range ids {
		fmt.Printf("- Account %s: %d -> %d\n", id, report.Before[i], report.After[i])
	}
	return nil
}

func runScheduleFreeze(c *cli.Context, rt *runtime) error {
	ctx, cancel := rt.context()
	defer cancel()

	handoff, err := flows.FreezeScheduledTransfer(ctx, rt.env, scheduleAmount(c))
	if err != nil {
		return err
	}
	fmt.Println(handoff)
	return nil
}

func runScheduleSubmit(c *cli.Context, rt *runtime) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one transaction string argument")
	}
	ctx, cancel := rt.context()
	defer cancel()

	report, err := flows.SubmitScheduledHandoff(ctx, rt.env, c.Args().First(), c.Duration(wait.Name))
	if err != nil {
		return err
	}
	printSchedule(report)
	return nil
}

func runScheduleDemo(c *cli.Context, rt *runtime) error {
	ctx, cancel := rt.context()
	defer cancel()
	if err := rt.ensureAccounts(ctx, 2); err != nil {
		return err
	}

	handoff, err := flows.FreezeScheduledTransfer(ctx, rt.env, scheduleAmount(c))
	if err != nil {
		return err
	}
	fmt.Println("Serialized transaction:", handoff)

	report, err := flows.SubmitScheduledHandoff(ctx, rt.env, handoff, c.Duration(wait.Name))
	if err != nil {
		return err
	}
	printSchedule(report)
	return nil
}

func scheduleAmount(c *cli.Context) int64 {
	if amt := c.Int64(amount.Name); amt > 0 {
		return amt
	}
	return 10
}

func printSchedule(report *flows.ScheduleReport) {
	fmt.Printf("Schedule %s created with status %s\n", report.ScheduleID, report.Created.Status)
	if report.Executed != nil {
		fmt.Printf("Scheduled transaction %s: %s\n", report.ScheduledTransactionID, report.Executed.Status)
	}
}

func runTopic(c *cli.Context, rt *runtime) error {
	if err := rt.requireOperator(); err != nil {
		return err
	}
	ctx, cancel := rt.context()
	defer cancel()

	report, err := flows.TopicRoundTrip(ctx, rt.env, c.String(message.Name), 1, c.Duration(wait.Name))
	if report != nil && report.TopicID != "" {
		fmt.Printf("The newly created topic ID is: %s\n", report.TopicID)
	}
	if err != nil {
		return err
	}
	fmt.Printf("The message transaction status is: %s\n", report.Submitted.Status)
	for _, msg := range report.Received {
		fmt.Printf("#%d %s\n", msg.SequenceNumber, msg.Contents)
	}
	return nil
}

func runBalance(c *cli.Context, rt *runtime) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one account id argument")
	}
	ctx, cancel := rt.context()
	defer cancel()

	b, err := rt.network.GetAccountBalance(ctx, types.AccountID(c.Args().First()))
	if err != nil {
		return err
	}
	fmt.Printf("- Account %s: %d\n", b.AccountID, b.Native)
	for id, units := range b.Tokens {
		fmt.Printf("  %s: %d\n", id, units)
	}
	return nil
}
