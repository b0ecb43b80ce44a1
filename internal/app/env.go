package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"golang.org/x/sys/execabs"

	"github.com/gajzzs/relayblock/internal/blocker"
	"github.com/gajzzs/relayblock/internal/config"
	"github.com/gajzzs/relayblock/internal/feed"
	"github.com/gajzzs/relayblock/internal/ledger"
	"github.com/gajzzs/relayblock/internal/platform"
	"github.com/gajzzs/relayblock/internal/probe"
	"github.com/gajzzs/relayblock/internal/session"
)

var errNotRoot = errors.New("relayblock must be run as root (try sudo)")

// Env is the set of wired components one command works with.
type Env struct {
	Config  *config.Config
	Logger  *log.Logger
	Blocker *blocker.NetworkBlocker
	Session *session.Session
}

func NewEnv(cfg *config.Config, logger *log.Logger) (*Env, error) {
	routes, err := platform.NewNetworkManager(cfg.RouteBackend)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	pinger, err := probe.NewPinger(cfg.Probe.Method)
	if err != nil {
		return nil, err
	}

	prober := probe.New(pinger, probe.Options{
		Count:   cfg.Probe.Count,
		Timeout: cfg.Probe.Timeout,
		Logger:  logger,
	})
	nb := blocker.NewNetworkBlocker(routes, l, logger)
	source := feed.NewHTTPSource(cfg.Feed.URL, cfg.Feed.Timeout, logger)

	return &Env{
		Config:  cfg,
		Logger:  logger,
		Blocker: nb,
		Session: session.New(source, prober, nb, logger),
	}, nil
}

// setup runs the preflight checks and wires an Env for cmd.
func setup(cmd *cobra.Command) (*Env, error) {
	cfg := config.GetConfig()
	if err := Preflight(cfg); err != nil {
		return nil, err
	}
	return NewEnv(cfg, newLogger(cmd, cfg))
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *log.Logger {
	level := cfg.Level()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = log.DebugLevel
	}
	return log.NewWithOptions(colorable.NewColorableStderr(), log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}

// stdout is the command output, translated for Windows consoles when it is a
// terminal file.
func stdout(cmd *cobra.Command) io.Writer {
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		return colorable.NewColorable(f)
	}
	return cmd.OutOrStdout()
}

// Preflight checks privileges and the external tools the configured
// backends need.
func Preflight(cfg *config.Config) error {
	if os.Geteuid() != 0 {
		return errNotRoot
	}
	return checkTools(requiredTools(cfg), execabs.LookPath)
}

func requiredTools(cfg *config.Config) []string {
	var tools []string
	if cfg.RouteBackend == platform.BackendIPRoute {
		tools = append(tools, "ip")
	}
	if cfg.Probe.Method == probe.MethodExec {
		tools = append(tools, "ping")
	}
	return tools
}

func checkTools(tools []string, lookPath func(string) (string, error)) error {
	var missing []string
	for _, tool := range tools {
		if _, err := lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required tools not found in PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}
