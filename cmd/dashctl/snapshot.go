package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/headcorn/dashboard-api/internal/database"
	"github.com/headcorn/dashboard-api/internal/jobs"
	"github.com/headcorn/dashboard-api/internal/repository"
	"github.com/headcorn/dashboard-api/internal/storage"
	"github.com/spf13/cobra"
)

var snapshotDate string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect dashboard snapshots archived by the snapshot job",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Print a user's archived dashboard as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotShow,
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <email>",
	Short: "Remove a user's archived dashboard",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotDelete,
}

// snapshotTarget resolves the storage, day and user a snapshot command works on
func snapshotTarget(cmd *cobra.Command, email string) (storage.Storage, time.Time, uuid.UUID, error) {
	ctx := cmd.Context()

	day := time.Now().UTC()
	if snapshotDate != "" {
		parsed, err := time.Parse(time.DateOnly, snapshotDate)
		if err != nil {
			return nil, time.Time{}, uuid.Nil, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", snapshotDate)
		}
		day = parsed
	}

	cfg, log, err := setup(ctx)
	if err != nil {
		return nil, time.Time{}, uuid.Nil, err
	}

	db, err := database.NewDatabase(&cfg.Database, false)
	if err != nil {
		return nil, time.Time{}, uuid.Nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	user, err := repository.NewUserRepository(db).GetByEmail(ctx, email)
	if err != nil {
		return nil, time.Time{}, uuid.Nil, fmt.Errorf("user %s: %w", email, err)
	}

	store, err := storage.NewStorage(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, time.Time{}, uuid.Nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, day, user.ID, nil
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	store, day, userID, err := snapshotTarget(cmd, args[0])
	if err != nil {
		return err
	}

	snap, err := jobs.LoadSnapshot(cmd.Context(), store, day, userID)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", jobs.SnapshotKey(day, userID), err)
	}
	return printJSON(cmd.OutOrStdout(), snap)
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	store, day, userID, err := snapshotTarget(cmd, args[0])
	if err != nil {
		return err
	}

	key := jobs.SnapshotKey(day, userID)
	if err := jobs.DeleteSnapshot(cmd.Context(), store, day, userID); err != nil {
		return fmt.Errorf("snapshot %s: %w", key, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", key)
	return nil
}
