// Author @gajzzs
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gajzzs/relayblock/internal/app"
	"github.com/gajzzs/relayblock/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "relayblock",
	Short: "Rank and blackhole game relay locations",
	Long:  "Relayblock pings Steam Datagram Relay locations and blocks the ones you do not want to be matched through by adding blackhole routes for their addresses.",
	Args:  cobra.NoArgs,
	RunE:  app.RunMenu,

	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.AddCommand(
		app.NewMenuCommand(),
		app.NewListCommand(),
		app.NewBlockCommand(),
		app.NewUnblockCommand(),
		app.NewLedgerCommand(),
		app.NewUnblockAllCommand(),
		app.NewRestoreCommand(),
		app.NewStatusCommand(),
		app.NewServiceCommand(),
	)
}

func main() {
	if err := config.InitConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
