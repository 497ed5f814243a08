package main

import (
	"shop-admin/internal/database"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "applies, rolls back or lists schema migrations",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	dbService, err := database.New(cfg.Database)
	if err != nil {
		return err
	}
	defer dbService.Close()
	db := dbService.DB()

	switch args[0] {
	case "up":
		err = database.RunMigrations(db, log)
	case "down":
		err = database.RollbackMigration(db, log)
	case "status":
		err = database.GetMigrationStatus(db)
	default:
		return errors.Newf("unknown migrate action %q", args[0])
	}
	if err != nil {
		log.Error("Migration command failed", zap.String("action", args[0]), zap.Error(err))
		return err
	}
	return nil
}
