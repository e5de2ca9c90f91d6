package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply quota store schema migrations",
	Long:  "Applies the embedded SQL migrations for the configured Postgres or SQLite quota store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Quota)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, ok := st.(migrator)
		if !ok {
			return eris.Errorf("quota store %q has no migrations", cfg.Quota.Store)
		}
		if err := m.Migrate(ctx); err != nil {
			return eris.Wrap(err, "quota migrate")
		}

		zap.L().Info("all migrations applied successfully", zap.String("store", cfg.Quota.Store))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
