package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/foxzi/ingestdesk/internal/datatable"
	"github.com/foxzi/ingestdesk/internal/web/backend"
	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write jobs, issues and contacts as CSV files",
	RunE:  runExport,
}

var exportDir string

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "dir", "d", ".", "Output directory")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, client, err := openBackend()
	if err != nil {
		return err
	}

	written, err := exportAll(runContext(cmd), client, cfg, exportDir, []source{jobsSource, issuesSource, contactsSource})
	if err != nil {
		return err
	}
	for _, path := range written {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	}
	return nil
}

// exportAll fetches every source concurrently and writes <name>.csv for
// each into dir. Nothing is written unless every fetch succeeds.
func exportAll(ctx context.Context, client *backend.Client, cfg *config.Config, dir string, sources []source) ([]string, error) {
	tables := make([]*datatable.Table, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			t, err := loadTable(gctx, client, cfg, src)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	written := make([]string, 0, len(sources))
	for i, src := range sources {
		path := filepath.Join(dir, src.name+".csv")
		if err := writeFile(path, tables[i].ExportCSV); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
