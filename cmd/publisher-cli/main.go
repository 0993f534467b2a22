package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eHtmlu/peak-publisher/internal/archive"
	"github.com/eHtmlu/peak-publisher/internal/catalog"
	"github.com/eHtmlu/peak-publisher/internal/core"
	"github.com/eHtmlu/peak-publisher/internal/store"
	"github.com/eHtmlu/peak-publisher/internal/upload"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the configuration, opens the database and applies the
// migrations. The caller must defer app.Close().
func newApp() (*core.App, error) {
	a, err := core.New()
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "publisher-cli",
	Short:        "Maintenance tool for the plugin publisher",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Printf("Database %s is up to date.\n", a.Config.Database.Path)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <zip>",
	Short: "Run an archive through the ingestion phases and print the report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		cfg := a.Config
		sessions := upload.NewSessionStore(cfg.Uploads.Path, cfg.UploadTTL(), a.Logger)
		pipeline := upload.NewPipeline(sessions, store.New(a.DB), archive.New(a.Logger),
			upload.Options{Ingest: cfg.Ingest, PublicURL: cfg.PublicURL}, a.Logger, nil)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		resp := pipeline.Run(ctx, upload.PhaseRequest{
			Phase:    upload.PhasePrepare,
			File:     f,
			FileName: filepath.Base(args[0]),
			FileSize: info.Size(),
			MimeType: "application/zip",
		})
		uploadID := resp.UploadID
		for resp.Status == upload.StatusOK && resp.Next != "" {
			resp = pipeline.Run(ctx, upload.PhaseRequest{UploadID: uploadID, Phase: resp.Next})
			if resp.Data != nil {
				break
			}
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if uploadID == "" {
			return nil
		}
		if keep {
			fmt.Fprintf(os.Stderr, "Upload kept as %s\n", uploadID)
			return nil
		}
		if err := sessions.Dispose(uploadID); err != nil {
			return fmt.Errorf("discarding upload: %w", err)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove abandoned upload workspaces",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := upload.NewSessionStore(a.Config.Uploads.Path, a.Config.UploadTTL(), a.Logger).Sweep()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d upload workspaces.\n", n)
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove empty folders from the archive storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := catalog.NewService(store.New(a.DB), a.Config.Storage.Path, a.Logger).PruneStorage()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d empty folders.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().BoolP("keep", "k", false, "Keep the upload workspace")
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(pruneCmd)
}
