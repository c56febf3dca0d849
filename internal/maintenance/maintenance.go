package maintenance

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"huddle/pkg/config"
	"huddle/pkg/logger"
	"huddle/pkg/registry"
	"huddle/pkg/store"
)

// Start launches the background sweep scheduler when enabled. Returns a
// cancel func; a disabled runner returns a no-op cancel.
func Start(ctx context.Context, cfg *config.Config) (context.CancelFunc, error) {
	m := cfg.Maintenance
	if !m.Enabled {
		logger.Info("maintenance_disabled")
		return func() {}, nil
	}

	cronExpr := m.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("maintenance_invalid_cron", "cron", m.Cron)
		return nil, fmt.Errorf("invalid maintenance cron expression: %s", m.Cron)
	}

	logger.Info("maintenance_enabled", "cron", cronExpr, "dry_run", m.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick with gronx and sleeps until then,
// supporting full cron syntax.
func runScheduler(ctx context.Context, cfg *config.Config, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := RunOnce(cfg); err != nil {
				logger.Error("maintenance_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs one full sweep: repair drifted sibling order values
// for every ordered entity type, then rotate the audit log when it has
// outgrown its cap. Dry-run reports what a real run would change.
func RunOnce(cfg *config.Config) error {
	start := time.Now()
	repaired, err := RepairOrders(cfg.Maintenance.DryRun)
	if err != nil {
		return err
	}
	if cfg.Audit.Enabled && cfg.Audit.Dir != "" && !cfg.Maintenance.DryRun {
		maxSize := cfg.Audit.MaxSize.Int64()
		if maxSize <= 0 {
			maxSize = 10 * 1024 * 1024
		}
		if err := logger.RotateIfLarge(filepath.Join(cfg.Audit.Dir, "audit.log"), maxSize); err != nil {
			logger.Error("audit_rotate_failed", "error", err)
		}
	}
	logger.Info("maintenance_run_complete", "repaired", repaired, "dry_run", cfg.Maintenance.DryRun, "elapsed", time.Since(start).String())
	return nil
}

// RepairOrders walks every channel of every ordered entity type and
// rewrites non-dense order sequences. Concurrent reorders resolved by
// last-write-wins can leave gaps or duplicates; the repack keeps the
// current relative order and only fixes the numbering.
func RepairOrders(dryRun bool) (int, error) {
	total := 0
	for _, t := range registry.All() {
		if !t.Ordered {
			continue
		}
		channels, err := store.Channels(t.Name)
		if err != nil {
			return total, fmt.Errorf("failed to list channels for %s: %w", t.Name, err)
		}
		for _, ch := range channels {
			if dryRun {
				drift, err := countDrift(t.Name, ch)
				if err != nil {
					return total, err
				}
				if drift > 0 {
					logger.Info("order_repair_dry_run", "type", t.Name, "channel", ch, "would_repair", drift)
					total += drift
				}
				continue
			}
			changed, err := store.RepackChannel(t.Name, ch)
			if err != nil {
				return total, fmt.Errorf("repack failed for %s/%s: %w", t.Name, ch, err)
			}
			if changed > 0 {
				logger.Info("order_repaired", "type", t.Name, "channel", ch, "changed", changed)
				total += changed
			}
		}
	}
	return total, nil
}

func countDrift(entityType, channelName string) (int, error) {
	envs, err := store.ReadByChannel(entityType, channelName)
	if err != nil {
		return 0, err
	}
	drift := 0
	for i := range envs {
		if cur, ok := envs[i].Order(); !ok || cur != i {
			drift++
		}
	}
	return drift, nil
}
