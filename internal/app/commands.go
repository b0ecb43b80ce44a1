package app

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/config"
	"github.com/gajzzs/relayblock/internal/relay"
	"github.com/gajzzs/relayblock/internal/service"
	"github.com/gajzzs/relayblock/internal/session"
)

// RunMenu is the interactive mode used by `menu` and the bare root command.
func RunMenu(cmd *cobra.Command, args []string) error {
	env, err := setup(cmd)
	if err != nil {
		return err
	}
	return NewMenu(env, stdout(cmd)).Run(cmd.Context())
}

func NewMenuCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive ping and block menu",
		Args:  cobra.NoArgs,
		RunE:  RunMenu,
	}
}

func NewListCommand() *cobra.Command {
	var noPing bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Rank relay locations by latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			s := env.Session
			if err := s.Refresh(cmd.Context()); err != nil {
				return err
			}
			if !noPing {
				pingAll(cmd.Context(), s, cmd.ErrOrStderr())
			}
			s.RefreshStatuses()
			RenderTable(stdout(cmd), s.View())
			return nil
		},
	}
	cmd.Flags().BoolVar(&noPing, "no-ping", false, "List locations without measuring latency")
	return cmd
}

func NewBlockCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "block <rank|code>...",
		Short: "Blackhole every address of the given locations",
		Long: "Block locations by location code or by row number. Row numbers refer to a fresh ranking, " +
			"so locations are pinged first and the resolved rows are shown for confirmation unless --yes is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd, args)
			if err != nil {
				return err
			}
			locs, err := selectForChange(env.Session, args, "Block", yes, stdout(cmd), survey.AskOne)
			if err != nil {
				return err
			}
			RenderResults(stdout(cmd), "Blocked", env.Session.Block(locs))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask before acting on row numbers")
	return cmd
}

func NewUnblockCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "unblock <rank|code>...",
		Short: "Remove the blackhole routes of the given locations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := resolveEnv(cmd, args)
			if err != nil {
				return err
			}
			locs, err := selectForChange(env.Session, args, "Unblock", yes, stdout(cmd), survey.AskOne)
			if err != nil {
				return err
			}
			RenderResults(stdout(cmd), "Unblocked", env.Session.Unblock(locs))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask before acting on row numbers")
	return cmd
}

var errNotConfirmed = errors.New("selection not confirmed, nothing changed")

// selectForChange resolves selectors for block or unblock. Row numbers follow
// the ping taken just now, which may order locations differently from an
// earlier listing, so a selection by row is printed and has to be confirmed
// unless yes is set. Selections by code go through as they are.
func selectForChange(s *session.Session, selectors []string, verb string, yes bool, out io.Writer, ask askFunc) ([]relay.Location, error) {
	sel, err := s.Resolve(selectors)
	if err != nil {
		return nil, err
	}
	if !sel.ByRank || yes {
		return sel.Locations(), nil
	}

	RenderTable(out, sel.Rows)
	confirmed := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("%s the %d location(s) above?", verb, len(sel.Rows)),
	}
	if err := ask(prompt, &confirmed); err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, errNotConfirmed
	}
	return sel.Locations(), nil
}

// resolveEnv loads the relay list and, when any selector is a row number,
// pings so that ranks match what `list` shows.
func resolveEnv(cmd *cobra.Command, selectors []string) (*Env, error) {
	env, err := setup(cmd)
	if err != nil {
		return nil, err
	}
	if err := env.Session.Refresh(cmd.Context()); err != nil {
		return nil, err
	}
	for _, sel := range selectors {
		if _, err := strconv.Atoi(sel); err == nil {
			pingAll(cmd.Context(), env.Session, cmd.ErrOrStderr())
			break
		}
	}
	return env, nil
}

func NewLedgerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show recorded blocks and whether their routes are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			entries, err := env.Blocker.Audit()
			if err != nil {
				return err
			}
			RenderAudit(stdout(cmd), entries)
			return nil
		},
	}
}

func NewUnblockAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock-all",
		Short: "Remove every blackhole route recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			results, err := env.Blocker.UnblockAll()
			RenderAddressResults(stdout(cmd), results)
			return err
		},
	}
}

func NewRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Reinstall recorded blackhole routes that are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd)
			if err != nil {
				return err
			}
			results, err := env.Blocker.Restore()
			if err != nil {
				return err
			}
			out := stdout(cmd)
			RenderAddressResults(out, results)
			counts := outcomeCounts(results)
			fmt.Fprintf(out, "%d restored, %d already present, %d failed\n",
				counts[blocker.BlockedNow], counts[blocker.AlreadyBlocked], counts[blocker.Failed])
			return nil
		},
	}
}

func NewServiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the route restore service",
	}

	control := func(use, short string, action func(*service.ServiceManager) error, done string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := Preflight(config.GetConfig()); err != nil {
					return err
				}
				sm, err := service.NewServiceManager(nil)
				if err != nil {
					return err
				}
				if err := action(sm); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), done)
				return nil
			},
		}
	}

	cmd.AddCommand(
		control("install", "Install relayblock as a system service", (*service.ServiceManager).Install, "Service installed"),
		control("uninstall", "Remove the system service", (*service.ServiceManager).Uninstall, "Service uninstalled"),
		control("start", "Start the system service", (*service.ServiceManager).Start, "Service started"),
		control("stop", "Stop the system service", (*service.ServiceManager).Stop, "Service stopped"),
		&cobra.Command{
			Use:   "status",
			Short: "Show system service status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sm, err := service.NewServiceManager(nil)
				if err != nil {
					return err
				}
				status, err := sm.Status()
				fmt.Fprintf(cmd.OutOrStdout(), "Service status: %s\n", status)
				fmt.Fprintf(cmd.OutOrStdout(), "Service config: %s\n", service.GetServiceConfigPath())
				return err
			},
		},
		&cobra.Command{
			Use:    "run",
			Short:  "Run the restore loop in the foreground (used by the service manager)",
			Args:   cobra.NoArgs,
			Hidden: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := setup(cmd)
				if err != nil {
					return err
				}
				daemon := service.NewDaemon(env.Blocker, env.Config.RestoreInterval, env.Logger)
				sm, err := service.NewServiceManager(daemon)
				if err != nil {
					return err
				}
				return sm.Run()
			},
		},
	)
	return cmd
}

func outcomeCounts(results []blocker.AddressResult) map[blocker.Outcome]int {
	counts := make(map[blocker.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	return counts
}
