package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/disbursement/internal/core/database"
	"github.com/frahmantamala/disbursement/internal/fsp"
	fsppostgres "github.com/frahmantamala/disbursement/internal/fsp/postgres"
)

var (
	seedFile  string
	clearData bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed provider configurations from a catalogue file",
	Long:  `Store the financial service providers listed in a YAML catalogue. Callback secrets are hashed before storage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, lg, err := setup()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		f, err := os.Open(seedFile)
		if err != nil {
			return err
		}
		defer f.Close()

		catalogue, err := fsp.ParseCatalogue(f)
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := database.Connect(ctx, cfg.Database, lg)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		n, err := fsp.Seed(ctx, fsppostgres.NewConfigurationRepository(db.Gorm), catalogue, cfg.Security.BCryptCost, clearData)
		if err != nil {
			return err
		}
		lg.Info("seeded fsp configurations", "count", n, "file", seedFile, "cleared", clearData)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "fsp.yml", "provider catalogue file")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
}
