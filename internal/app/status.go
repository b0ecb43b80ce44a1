package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/config"
	"github.com/gajzzs/relayblock/internal/ledger"
	"github.com/gajzzs/relayblock/internal/platform"
	"github.com/gajzzs/relayblock/internal/service"
	"github.com/gajzzs/relayblock/internal/system"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:                   "status",
		Short:                 "Show configuration, ledger and service status",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetConfig()
			out := stdout(cmd)

			fmt.Fprintln(out, cyan("Relayblock Status"))
			fmt.Fprintln(out, "=================")

			fmt.Fprintln(out, "\nConfiguration:")
			fmt.Fprintf(out, "  Config file: %s\n", config.ConfigFile)
			fmt.Fprintf(out, "  Relay feed: %s\n", cfg.Feed.URL)
			fmt.Fprintf(out, "  Route backend: %s\n", cfg.RouteBackend)
			fmt.Fprintf(out, "  Probe: %s, %d x %s\n", cfg.Probe.Method, cfg.Probe.Count, cfg.Probe.Timeout)
			fmt.Fprintf(out, "  Restore interval: %s\n", cfg.RestoreInterval)

			fmt.Fprintln(out, "\nLedger:")
			fmt.Fprintf(out, "  File: %s\n", cfg.LedgerPath())
			if os.Geteuid() != 0 {
				fmt.Fprintln(out, "  Route state: run as root to inspect")
			} else if entries, err := auditLedger(cfg); err != nil {
				fmt.Fprintf(out, "  Error: %v\n", err)
			} else {
				var missing int
				for _, e := range entries {
					if !e.Blocked {
						missing++
					}
				}
				fmt.Fprintf(out, "  Recorded: %d\n", len(entries))
				fmt.Fprintf(out, "  Missing routes: %d\n", missing)
			}

			fmt.Fprintln(out, "\nService Status:")
			if sm, err := service.NewServiceManager(nil); err == nil {
				status, _ := sm.Status()
				fmt.Fprintf(out, "  Status: %s\n", status)
				fmt.Fprintf(out, "  Config: %s\n", service.GetServiceConfigPath())
			} else {
				fmt.Fprintln(out, "  Status: Not Available")
			}

			fmt.Fprintln(out, "\nSystem Information:")
			if info, err := system.GetHostInfo(); err == nil {
				fmt.Fprintf(out, "  Host: %s\n", info)
			} else {
				fmt.Fprintf(out, "  Error: %v\n", err)
			}
			return nil
		},
	}
}

// auditLedger inspects routes without the full preflight, so status works
// even when optional tools are missing.
func auditLedger(cfg *config.Config) ([]blocker.AuditEntry, error) {
	routes, err := platform.NewNetworkManager(cfg.RouteBackend)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	return blocker.NewNetworkBlocker(routes, l, nil).Audit()
}
