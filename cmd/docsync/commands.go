package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"docsync/internal/app"
	"docsync/internal/config"
	"docsync/internal/logger"
	"docsync/internal/model"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docsync",
		Short: "Offline document cache with deferred delivery",
		Long: `docsync keeps generated PDF documents in a local cache until the
remote endpoint has accepted them.

Configuration is read from the environment (and .env when present),
the same way the HTTP server reads it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSyncCmd(), newPendingCmd(), newSaveCmd())
	return root
}

// withApp builds the application for one command and tears it down afterwards.
// Logs go to stderr unless LOG_FILE is set, keeping stdout for results.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()

	var (
		log    *logger.Logger
		closer io.Closer = io.NopCloser(nil)
	)
	if cfg.Log.File != "" {
		log, closer = logger.FromConfig(cfg.Log)
	} else {
		log = logger.New(cmd.ErrOrStderr(), cfg.Log.Location())
	}
	defer closer.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver every pending document once",
		Long: `Run one sync cycle: every pending document is posted to the delivery
endpoint and removed from the cache once accepted. Documents that fail stay
pending for the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Sync.RunSync(ctx)
				if err != nil {
					return fmt.Errorf("sync: %w", err)
				}
				out := cmd.OutOrStdout()
				if report.Skipped {
					fmt.Fprintln(out, "Another sync is already running; nothing done.")
					return nil
				}
				fmt.Fprintf(out, "Sync complete in %v\n", report.Duration.Round(time.Millisecond))
				fmt.Fprintf(out, "   Pending:   %d\n", report.Total)
				fmt.Fprintf(out, "   Delivered: %d\n", report.Delivered)
				fmt.Fprintf(out, "   Failed:    %d\n", report.Failed)
				return nil
			})
		},
	}
}

func newPendingCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List documents waiting for delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				docs, err := a.Docs.ListPending(ctx)
				if err != nil {
					return fmt.Errorf("list pending: %w", err)
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(docs)
				}
				if len(docs) == 0 {
					fmt.Fprintln(out, "No pending documents.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILE\tCOMPANY\tSAVED")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.FileName, d.Metadata.CompanyCode, d.Timestamp.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newSaveCmd() *cobra.Command {
	var meta model.Metadata
	cmd := &cobra.Command{
		Use:   "save <file.pdf>",
		Short: "Store a PDF for later delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Docs.Save(ctx, meta, model.EncodeDataURI(model.PDFMediaType, payload))
				if err != nil {
					return fmt.Errorf("save: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s as %s\n", res.ID, res.FileName)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&meta.CompanyCode, "company-code", "", "company code")
	f.StringVar(&meta.CompanyName, "company-name", "", "company name")
	f.StringVar(&meta.Date, "date", time.Now().Format(time.DateOnly), "document date")
	f.StringVar(&meta.Car.Brand, "brand", "", "car brand")
	f.StringVar(&meta.Car.Model, "model", "", "car model")
	_ = cmd.MarkFlagRequired("company-code")
	return cmd
}
