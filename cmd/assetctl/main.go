package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"commerce/internal/config"
	"commerce/internal/database"
	"commerce/internal/domain/asset"
	"commerce/internal/logger"
	"commerce/internal/tenant"
)

var (
	purgeRetention time.Duration
	wipeConfirm    bool
	listChannel    int64
	listTake       string
	listSkip       string
	listType       string
	cmdTimeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "assetctl",
	Short:         "Maintenance commands for the asset store",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Hard-delete assets soft-deleted longer than the retention",
	Long: `Hard-delete assets soft-deleted longer than the retention.

Examples:
  assetctl purge
  assetctl purge --retention 168h`,
	RunE: runPurge,
}

var wipeCmd = &cobra.Command{
	Use:   "wipe-storage",
	Short: "Remove every stored file (records are kept)",
	RunE:  runWipe,
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List assets of a channel",
	Aliases: []string{"ls"},
	RunE:    runList,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 10*time.Minute, "Abort the command after this long")

	purgeCmd.Flags().DurationVar(&purgeRetention, "retention", 0, "Override ASSET_PURGE_RETENTION")
	wipeCmd.Flags().BoolVar(&wipeConfirm, "yes", false, "Confirm deletion of all stored files")
	listCmd.Flags().Int64Var(&listChannel, "channel", 0, "Channel id (required)")
	listCmd.Flags().StringVar(&listTake, "take", "", "Page size")
	listCmd.Flags().StringVar(&listSkip, "skip", "", "Offset")
	listCmd.Flags().StringVar(&listType, "type", "", "IMAGE, VIDEO, AUDIO or BINARY")
	_ = listCmd.MarkFlagRequired("channel")

	rootCmd.AddCommand(purgeCmd, wipeCmd, listCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*config.AppConfig, *asset.Service, *logger.Log, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log := logger.Init(cfg.LogLevel)
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := asset.AutoMigrate(db); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	svc, _, err := asset.NewFromConfig(db, cfg.Asset, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, svc, log, nil
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, svc, log, err := setup()
	if err != nil {
		return err
	}
	retention := cfg.Asset.PurgeRetention
	if purgeRetention > 0 {
		retention = purgeRetention
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
	defer cancel()
	n, err := asset.NewPurger(svc, retention, log).RunOnce(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d assets\n", n)
	return err
}

func runWipe(cmd *cobra.Command, args []string) error {
	if !wipeConfirm {
		return fmt.Errorf("refusing to wipe storage without --yes")
	}
	_, svc, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
	defer cancel()
	if err := svc.WipeStorage(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "storage wiped")
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	_, svc, _, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
	defer cancel()

	page, err := svc.FindMany(ctx, tenant.Scope{ChannelID: listChannel}, asset.ListParams{
		Take: listTake,
		Skip: listSkip,
		Type: listType,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSIZE\tCREATED")
	for _, a := range page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.ID, a.Name, a.Type, a.FileSize, a.CreatedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(page.Items), page.Total)
	return nil
}
