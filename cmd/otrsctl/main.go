// Command otrsctl talks to an OTRS web service and to a running connector agent.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuannvm/otrs-connector/internal/config"
	log "github.com/tuannvm/otrs-connector/internal/logging"
)

var cfg *config.Config

func main() {
	defer log.Sync()
	cfg = config.NewConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "otrsctl",
	Short: "OTRS connector command line",
	Long: `otrsctl runs connector functions against an OTRS GenericInterface web service.

Credentials default to OTRS_BASE_URL, OTRS_USER and OTRS_PASSWORD and can be
overridden with flags.`,
	SilenceUsage: true,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the OTRS credentials are accepted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd)
	},
}

var getTicketCmd = &cobra.Command{
	Use:   "get-ticket <ticket-id>",
	Short: "Fetch a ticket with its articles and dynamic fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGetTicket(cmd, args[0])
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List ticket ids created or changed after a date",
	Long: `Search tickets the way the polling triggers do.

Examples:
  otrsctl search --created-after "2020-01-01 00:00:00" --queues Raw,Junk
  otrsctl search --changed-after "2020-01-01 00:00:00" --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSearch(cmd)
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll <getNewTickets|getUpdatedTickets>",
	Short: "Run a polling trigger once and print what it emits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPoll(cmd, args[0])
	},
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <function>",
	Short: "Send an invocation to a running connector agent over A2A",
	Long: `Send an invocation to a running connector agent and wait for the result.

Examples:
  otrsctl invoke verifyCredentials
  otrsctl invoke getTicket --body '{"TicketID":"42"}'
  otrsctl invoke getNewTickets --cfg '{"startDateTime":"2020-01-01 00:00:00","limit":5}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInvoke(cmd, args[0])
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs <job>",
	Short: "Show recent runs of a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runRuns(cmd, args[0], limit)
	},
}

func init() {
	rootCmd.PersistentFlags().String("base-url", "", "OTRS web service URL (defaults to OTRS_BASE_URL)")
	rootCmd.PersistentFlags().String("user", "", "OTRS agent login (defaults to OTRS_USER)")
	rootCmd.PersistentFlags().String("password", "", "OTRS agent password (defaults to OTRS_PASSWORD)")

	getTicketCmd.Flags().Bool("attachments", false, "Include attachments and upload them to platform storage")

	searchCmd.Flags().String("created-after", "", "Only tickets created at or after this date (YYYY-MM-DD hh:mm:ss)")
	searchCmd.Flags().String("changed-after", "", "Only tickets changed at or after this date (YYYY-MM-DD hh:mm:ss)")
	searchCmd.Flags().String("queues", "", "Comma separated queue names")
	searchCmd.Flags().Int("limit", 50, "Maximum number of ids")

	pollCmd.Flags().String("start", "", "Start date for a first run (YYYY-MM-DD hh:mm:ss)")
	pollCmd.Flags().String("snapshot", "", "Snapshot JSON from a previous run")
	pollCmd.Flags().Int("limit", 0, "Tickets per run")
	pollCmd.Flags().String("queues", "", "Comma separated queue names")
	pollCmd.Flags().String("articles", "none", "Articles to include: none, first or all")
	pollCmd.Flags().Bool("attachments", false, "Upload attachments to platform storage")

	invokeCmd.Flags().String("agent-url", "", "Connector agent URL (defaults to AGENT_URL)")
	invokeCmd.Flags().String("body", "", "Message body JSON")
	invokeCmd.Flags().String("cfg", "", "Step configuration JSON")
	invokeCmd.Flags().String("snapshot", "", "Snapshot JSON")
	invokeCmd.Flags().Duration("timeout", 0, "How long to wait for the task (defaults to 2m)")

	runsCmd.Flags().Int("limit", 20, "Number of runs to show")

	rootCmd.AddCommand(verifyCmd, getTicketCmd, searchCmd, pollCmd, invokeCmd, runsCmd)
}
