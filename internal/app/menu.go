package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/schollz/progressbar/v3"

	"github.com/gajzzs/relayblock/internal/probe"
	"github.com/gajzzs/relayblock/internal/session"
)

const (
	actionPing        = "Ping all locations"
	actionBlock       = "Block locations"
	actionUnblock     = "Unblock locations"
	actionShowBlocked = "Show blocked routes"
	actionUnblockAll  = "Unblock all"
	actionRefresh     = "Refresh relay list and re-ping"
	actionExit        = "Exit"
)

var menuActions = []string{
	actionPing,
	actionBlock,
	actionUnblock,
	actionShowBlocked,
	actionUnblockAll,
	actionRefresh,
	actionExit,
}

type askFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// Menu is the interactive loop around one session.
type Menu struct {
	env *Env
	out io.Writer
	ask askFunc
	// progress is where the ping progress bar is drawn; nil disables it.
	progress io.Writer
}

func NewMenu(env *Env, out io.Writer) *Menu {
	return &Menu{
		env:      env,
		out:      out,
		ask:      survey.AskOne,
		progress: out,
	}
}

// Run loads the relay list, shows the first ranking and then serves menu
// actions until the operator exits or interrupts.
func (m *Menu) Run(ctx context.Context) error {
	if err := m.reload(ctx); err != nil {
		return err
	}

	for {
		var action string
		err := m.ask(&survey.Select{
			Message:  "Choose an action:",
			Options:  menuActions,
			PageSize: len(menuActions),
		}, &action)
		if errors.Is(err, terminal.InterruptErr) || action == actionExit {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.dispatch(ctx, action); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				continue
			}
			fmt.Fprintln(m.out, red("Error: "+err.Error()))
		}
	}
}

func (m *Menu) dispatch(ctx context.Context, action string) error {
	s := m.env.Session
	switch action {
	case actionPing:
		m.ping(ctx)
		m.show()
	case actionBlock, actionUnblock:
		m.show()
		var input string
		if err := m.ask(&survey.Input{Message: "Row numbers (comma separated):"}, &input); err != nil {
			return err
		}
		ranks, err := session.ParseRanks(input)
		if err != nil {
			return err
		}
		if action == actionBlock {
			results, err := s.BlockRanks(ranks)
			if err != nil {
				return err
			}
			RenderResults(m.out, "Blocked", results)
		} else {
			results, err := s.UnblockRanks(ranks)
			if err != nil {
				return err
			}
			RenderResults(m.out, "Unblocked", results)
		}
		m.show()
	case actionShowBlocked:
		entries, err := m.env.Blocker.Audit()
		if err != nil {
			return err
		}
		RenderAudit(m.out, entries)
	case actionUnblockAll:
		confirm := false
		if err := m.ask(&survey.Confirm{Message: "Remove every recorded blackhole route?"}, &confirm); err != nil {
			return err
		}
		if !confirm {
			return nil
		}
		results, err := s.UnblockAll()
		RenderAddressResults(m.out, results)
		if err != nil {
			return err
		}
		m.show()
	case actionRefresh:
		return m.reload(ctx)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func (m *Menu) reload(ctx context.Context) error {
	if err := m.env.Session.Refresh(ctx); err != nil {
		return err
	}
	m.ping(ctx)
	m.show()
	return nil
}

func (m *Menu) ping(ctx context.Context) {
	pingAll(ctx, m.env.Session, m.progress)
}

// show re-reads block statuses so the table never shows stale state.
func (m *Menu) show() {
	m.env.Session.RefreshStatuses()
	RenderTable(m.out, m.env.Session.View())
}

// pingAll probes every location, drawing a progress bar on w when set.
func pingAll(ctx context.Context, s *session.Session, w io.Writer) {
	if w == nil {
		s.PingAll(ctx, nil)
		return
	}
	bar := progressbar.NewOptions(s.Registry().Len(),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Pinging relays"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	s.PingAll(ctx, func(string, probe.Observation) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
}
