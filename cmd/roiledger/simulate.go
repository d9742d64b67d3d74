package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"RoiLedger/internal/config"
	"RoiLedger/internal/ledger"
	"RoiLedger/internal/roi"
	"RoiLedger/internal/session"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run an interactive what-if session on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate()
		},
	}
}

const simulateHelp = `commands:
  sell <amount> [pnl]     record a spot-to-futures transfer (spot sell)
  buy <amount> [pnl]      record a futures-to-spot transfer (spot buy)
  pnl <amount>            record a signed futures PnL adjustment
  del spot <index>        delete a spot transfer
  del pnl <index>         delete a futures PnL entry
  set <field> <value>     set a scalar input (start_balance, end_balance,
                          external_deposit, external_withdrawal,
                          initial_spot_balance)
  policy <hwm|netflow|simple>
  show                    print the full calculation breakdown
  project                 print the projected end balance
  reset                   clear everything
  help                    this text
  quit`

func runSimulate() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	policy, _ := roi.ParsePolicy(cfg.Session.DefaultPolicy)
	state := session.New(policy)

	fmt.Printf("simulation session (policy=%s); type help for commands\n", policy)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Println(simulateHelp)
		default:
			if err := applyCommand(state, fields); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		}
	}
}

func applyCommand(state *session.State, fields []string) error {
	switch fields[0] {
	case "sell", "buy":
		if len(fields) < 2 {
			return fmt.Errorf("usage: %s <amount> [pnl]", fields[0])
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			return fmt.Errorf("bad amount %q", fields[1])
		}
		pnl := decimal.Zero
		if len(fields) > 2 {
			if pnl, err = decimal.NewFromString(fields[2]); err != nil {
				return fmt.Errorf("bad pnl %q", fields[2])
			}
		}
		side := ledger.SideSell
		if fields[0] == "buy" {
			side = ledger.SideBuy
		}
		if err := state.AddSpotTransfer(side, amount, pnl); err != nil {
			return err
		}
		printSummary(state)

	case "pnl":
		if len(fields) != 2 {
			return fmt.Errorf("usage: pnl <amount>")
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			return fmt.Errorf("bad amount %q", fields[1])
		}
		if err := state.AddFuturesPnl(amount); err != nil {
			return err
		}
		printSummary(state)

	case "del":
		if len(fields) != 3 {
			return fmt.Errorf("usage: del spot|pnl <index>")
		}
		idx, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("bad index %q", fields[2])
		}
		switch fields[1] {
		case "spot":
			err = state.DeleteSpotTransfer(idx)
		case "pnl":
			err = state.DeleteFuturesPnl(idx)
		default:
			return fmt.Errorf("usage: del spot|pnl <index>")
		}
		if err != nil {
			return err
		}
		printSummary(state)

	case "set":
		if len(fields) != 3 {
			return fmt.Errorf("usage: set <field> <value>")
		}
		field, err := session.ParseScalarField(fields[1])
		if err != nil {
			return err
		}
		value, err := decimal.NewFromString(fields[2])
		if err != nil {
			return fmt.Errorf("bad value %q", fields[2])
		}
		if err := state.SetScalarInput(field, value); err != nil {
			return err
		}
		printSummary(state)

	case "policy":
		if len(fields) != 2 {
			return fmt.Errorf("usage: policy <hwm|netflow|simple>")
		}
		policy, ok := roi.ParsePolicy(fields[1])
		if !ok {
			return fmt.Errorf("unknown policy %q", fields[1])
		}
		state.SetPolicy(policy)
		printSummary(state)

	case "show":
		fmt.Print(state.ComputeResult().BreakdownTable())

	case "project":
		fmt.Printf("projected end balance: %s\n", state.ProjectedEndBalance())

	case "reset":
		state.Reset()
		fmt.Println("session cleared")

	default:
		return fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	return nil
}

func printSummary(state *session.State) {
	res := state.ComputeResult()
	fmt.Printf("adjusted pnl %s | principal %s | roi %s%%\n",
		res.AdjustedPnl, res.PrincipalAdjustment, res.RoiPercent.StringFixed(2))
}
