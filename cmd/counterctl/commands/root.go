package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/counterd/internal/server"
)

var (
	// rpcClient is the ConnectRPC client, initialized in PersistentPreRunE.
	rpcClient *server.Client

	// outputFormat controls the output format for all commands (table, json or yaml).
	outputFormat string

	// serverAddr is the daemon RPC address (host:port).
	serverAddr string

	// commandAddr is the daemon UDP command address (host:port).
	commandAddr string

	// transportName selects how command batches reach the daemon (rpc or udp).
	transportName string

	// timeout bounds each request.
	timeout time.Duration
)

// rootCmd is the top-level cobra command for counterctl.
var rootCmd = &cobra.Command{
	Use:   "counterctl",
	Short: "CLI client for the counterd daemon",
	Long: "counterctl registers and removes counters on a counterd daemon, " +
		"sending command batches over ConnectRPC or UDP.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := checkFormat(outputFormat); err != nil {
			return err
		}

		rpcClient = server.NewClient(http.DefaultClient, "http://"+serverAddr)

		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverAddr, "addr", "localhost:50061",
		"counterd RPC address (host:port)")
	flags.StringVar(&commandAddr, "command-addr", "127.0.0.1:40123",
		"counterd UDP command address (host:port), used with --transport udp")
	flags.StringVar(&transportName, "transport", transportRPC,
		"command transport: rpc, udp")
	flags.StringVar(&outputFormat, "format", formatTable,
		"output format: table, json, yaml")
	flags.DurationVar(&timeout, "timeout", 5*time.Second,
		"request timeout")

	rootCmd.AddCommand(counterCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
