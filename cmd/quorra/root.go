package main

import (
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/quorra/internal/config"
	"github.com/capitalize-ai/quorra/pkg/logger"
)

// options are the persistent flags; they default to the environment.
type options struct {
	cfg      *config.Config
	apiURL   string
	token    string
	logLevel string
	logFile  string
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{cfg: cfg}

	root := &cobra.Command{
		Use:   "quorra",
		Short: "Chat with the assistant about your client organizations",
		Long: `Quorra keeps one conversation thread per topic, scoped to a client
organization. Threads are stored by the conversation store at --api-url.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", cfg.APIURL, "conversation store URL (QUORRA_API_URL)")
	root.PersistentFlags().StringVar(&opts.token, "token", cfg.Token, "bearer token (QUORRA_TOKEN)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", cfg.LogFile, "log file (default stderr)")

	root.AddCommand(newChatCmd(opts), newTokenCmd(opts))
	return root
}

// logger builds the CLI logger. Logs go to stderr or a file so they never
// interleave with the conversation on stdout.
func (o *options) logger() (*logger.Logger, error) {
	out := "stderr"
	if o.logFile != "" {
		out = o.logFile
	}
	return logger.NewConsole(o.logLevel, out)
}
