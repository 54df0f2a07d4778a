package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/disbursement/internal/core/database"
	"github.com/frahmantamala/disbursement/internal/fsp"
	fsppostgres "github.com/frahmantamala/disbursement/internal/fsp/postgres"
)

var fspCmd = &cobra.Command{
	Use:   "fsp",
	Short: "Inspect financial service providers",
}

var fspListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFSPService(func(ctx context.Context, svc *fsp.Service) error {
			return printJSON(svc.Providers(ctx))
		})
	},
}

var fspHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every provider that supports health checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFSPService(func(ctx context.Context, svc *fsp.Service) error {
			ctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			return printJSON(svc.CheckHealth(ctx))
		})
	},
}

func withFSPService(fn func(ctx context.Context, svc *fsp.Service) error) error {
	cfg, lg, err := setup()
	if err != nil {
		return err
	}
	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.Database, lg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := fsppostgres.NewConfigurationRepository(db.Gorm)
	registry, err := fsp.BuildRegistry(ctx, cfg.FSP, repo, lg)
	if err != nil {
		return err
	}
	return fn(ctx, fsp.NewService(registry, repo, lg))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func init() {
	fspCmd.AddCommand(fspListCmd)
	fspCmd.AddCommand(fspHealthCmd)
	rootCmd.AddCommand(fspCmd)
}
