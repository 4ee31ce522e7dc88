package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type (
	// PendingSyncer mirrors a batch of unsynced rows and reports how many succeeded.
	PendingSyncer interface {
		ProcessPending(ctx context.Context) (int, error)
	}

	// ConfigRefresher copies the reference lists into the local store,
	// replacing what is there.
	ConfigRefresher interface {
		RefreshConfig(ctx context.Context) error
	}
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to sweep for pending rows (default: 30s)
	PollInterval time.Duration

	// ConfigInterval is how often to refresh the reference lists (default: 1h)
	ConfigInterval time.Duration
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:   30 * time.Second,
		ConfigInterval: 1 * time.Hour,
	}
}

// SyncProcessor periodically sweeps rows whose AMQP message was lost or
// whose mirror failed, and refreshes the reference lists.
type SyncProcessor struct {
	syncer    PendingSyncer
	refresher ConfigRefresher
	config    SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(syncer PendingSyncer, refresher ConfigRefresher, config SyncProcessorConfig) *SyncProcessor {
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ConfigInterval <= 0 {
		config.ConfigInterval = def.ConfigInterval
	}
	return &SyncProcessor{
		syncer:    syncer,
		refresher: refresher,
		config:    config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"config_interval", p.config.ConfigInterval)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	configTicker := time.NewTicker(p.config.ConfigInterval)
	defer configTicker.Stop()

	// Callers load missing lists at startup; the first refresh waits a tick.
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-configTicker.C:
			p.refreshConfig(ctx)
		}
	}
}

func (p *SyncProcessor) processBatch(ctx context.Context) {
	if p.syncer == nil {
		return
	}
	n, err := p.syncer.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Pending sync sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pending sync sweep completed", "synced", n)
	}
}

func (p *SyncProcessor) refreshConfig(ctx context.Context) {
	if p.refresher == nil {
		return
	}
	if err := p.refresher.RefreshConfig(ctx); err != nil {
		slog.WarnContext(ctx, "Configuration refresh failed", "error", err)
	}
}
