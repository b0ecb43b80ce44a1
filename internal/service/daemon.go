package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gajzzs/relayblock/internal/blocker"
)

// Daemon keeps ledger addresses blackholed across reboots and manual route
// flushes by re-running Restore on a fixed interval.
type Daemon struct {
	blocker  *blocker.NetworkBlocker
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewDaemon(nb *blocker.NetworkBlocker, interval time.Duration, logger *log.Logger) *Daemon {
	if logger == nil {
		logger = log.Default()
	}
	return &Daemon{
		blocker:  nb,
		interval: interval,
		logger:   logger,
	}
}

// Start restores once immediately and then on every tick until Stop.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("daemon already running")
	}
	if d.interval <= 0 {
		return fmt.Errorf("restore interval must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true

	d.logger.Info("relayblock daemon starting", "interval", d.interval)
	go d.monitorRoutes(ctx, d.done)
	return nil
}

// Stop ends the restore loop. Routes stay in place.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return fmt.Errorf("daemon not running")
	}

	d.logger.Info("stopping relayblock daemon")
	d.cancel()
	<-d.done
	d.running = false
	return nil
}

func (d *Daemon) monitorRoutes(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.restore()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.restore()
		}
	}
}

func (d *Daemon) restore() {
	results, err := d.blocker.Restore()
	if err != nil {
		d.logger.Error("failed to read ledger", "error", err)
		return
	}

	var restored, failed int
	for _, r := range results {
		switch r.Outcome {
		case blocker.BlockedNow:
			restored++
		case blocker.Failed:
			failed++
		}
	}
	if restored > 0 {
		d.logger.Info("restored blackhole routes", "count", restored)
	}
	if failed > 0 {
		d.logger.Warn("some ledger routes could not be restored", "count", failed)
	}
}
