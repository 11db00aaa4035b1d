package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/counterd/internal/command"
)

// Sentinel errors for CLI validation.
var (
	errLabelRequired   = errors.New("--label flag is required")
	errTypeOutOfRange  = errors.New("--type must fit in 32 bits")
	errListNeedsRPC    = errors.New("counter list is only available over --transport rpc")
	errBadRegistration = errors.New("registration id must be a non-zero integer")
)

func counterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counter",
		Short: "Manage counters",
	}

	cmd.AddCommand(counterAddCmd())
	cmd.AddCommand(counterRemoveCmd())
	cmd.AddCommand(counterListCmd())

	return cmd
}

// --- counter add ---

func counterAddCmd() *cobra.Command {
	var (
		typeID        int64
		label         string
		keyHex        string
		correlationID int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new counter",
		Long: "Sends an AddCounter command. The correlation id doubles as the " +
			"registration id used by 'counter remove'.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if label == "" {
				return errLabelRequired
			}
			if typeID < math.MinInt32 || typeID > math.MaxInt32 {
				return fmt.Errorf("%w: %d", errTypeOutOfRange, typeID)
			}

			key, err := hex.DecodeString(keyHex)
			if err != nil {
				return fmt.Errorf("parse --key-hex: %w", err)
			}

			corr := correlationID
			if corr == 0 {
				corr = newCorrelationID()
			}

			batch, err := buildAddBatch(command.CounterCommand{
				CorrelationID: corr,
				TypeID:        command.TruncateTypeID(typeID),
				Key:           key,
				Label:         label,
			})
			if err != nil {
				return err
			}

			return runCommand(batch)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&typeID, "type", 0, "counter type id")
	flags.StringVar(&label, "label", "", "counter label, ASCII (required)")
	flags.StringVar(&keyHex, "key-hex", "", "counter key as hex bytes")
	flags.Int64Var(&correlationID, "correlation-id", 0,
		"correlation id; a time-based id is generated when zero")

	return cmd
}

// --- counter remove ---

func counterRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <registration-id>",
		Short: "Remove a counter by registration id",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			regID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse registration id %q: %w", args[0], err)
			}
			if regID == 0 {
				return errBadRegistration
			}

			batch, err := buildRemoveBatch(newCorrelationID(), regID)
			if err != nil {
				return err
			}

			return runCommand(batch)
		},
	}
}

// --- counter list ---

func counterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if transportName != transportRPC {
				return errListNeedsRPC
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			st, err := rpcClient.ListCounters(ctx)
			if err != nil {
				return fmt.Errorf("list counters: %w", err)
			}

			rows, err := countersFromStruct(st)
			if err != nil {
				return err
			}

			out, err := formatCounters(rows, outputFormat)
			if err != nil {
				return fmt.Errorf("format counters: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// runCommand submits a single-command batch over the selected transport and
// prints the result. A rejected command is printed before its error is
// returned.
func runCommand(batch []byte) error {
	s, err := newSubmitter()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, cmdErr := submitOne(ctx, s, batch)
	if cmdErr != nil && !errors.Is(cmdErr, errCommandRejected) {
		return cmdErr
	}

	out, err := formatResult(result, outputFormat)
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}

	fmt.Print(out)

	return cmdErr
}

// newCorrelationID returns a time-based correlation id.
func newCorrelationID() int64 {
	return time.Now().UnixNano()
}
