package cmd

import (
	"encoding/json"
	"fmt"

	caseservice "CaseForAI/backend/go/internal/case_service/service"
	casestore "CaseForAI/backend/go/internal/case_service/store"
	"CaseForAI/backend/go/internal/database/mysql"
	userservice "CaseForAI/backend/go/internal/user_service/service"
	userstore "CaseForAI/backend/go/internal/user_service/store"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the MySQL schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := mysql.GetDB(&cfg.Databases.MySQL)
		if err != nil {
			return err
		}
		defer mysql.Close()

		if err := mysql.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("Database schema is up to date")
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed roles, application types, EB-1A criteria, prompts and templates",
	Long: `Seed is idempotent: existing rows are left untouched and only missing
defaults are inserted. Run migrate first on a fresh database.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := mysql.GetDB(&cfg.Databases.MySQL)
		if err != nil {
			return err
		}
		defer mysql.Close()

		ctx := cmd.Context()
		users := userservice.NewService(userstore.NewStore(db), cfg.Auth.BcryptCostHint)
		if err := users.SeedRoles(ctx); err != nil {
			return fmt.Errorf("seed roles: %w", err)
		}

		svc, err := caseservice.NewService(caseservice.Deps{Store: casestore.NewStore(db)},
			caseservice.Options{Uploads: cfg.Uploads}, log)
		if err != nil {
			return err
		}
		res, err := svc.Seed(ctx)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}

		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
