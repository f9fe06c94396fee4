package main

import (
	"fmt"
	"io"

	"github.com/foxzi/ingestdesk/internal/web/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	printConfig(cmd.OutOrStdout(), cfg)
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Configuration is valid")
	fmt.Fprintf(w, "  Listen address: %s (TLS %s)\n", cfg.Server.ListenAddr, onOff(cfg.Server.TLS.Enabled))
	fmt.Fprintf(w, "  Database path: %s\n", cfg.Database.Path)
	fmt.Fprintf(w, "  Journal path: %s (retention %s)\n", cfg.Journal.Path, cfg.Journal.Retention)
	fmt.Fprintf(w, "  Local auth: %v\n", cfg.Auth.LocalEnabled)
	fmt.Fprintf(w, "  OIDC auth: %v\n", cfg.Auth.OIDC.Enabled)
	fmt.Fprintf(w, "  Editor group: %q\n", cfg.Auth.Roles.EditorGroup)
	fmt.Fprintf(w, "  Uploader group: %q\n", cfg.Auth.Roles.UploaderGroup)
	fmt.Fprintf(w, "  Backend: %s (timeout %s)\n", cfg.Backend.BaseURL, cfg.Backend.Timeout)

	for _, p := range []struct {
		name string
		cfg  config.PollConfig
	}{
		{"jobs", cfg.Polling.Jobs},
		{"issues", cfg.Polling.Issues},
		{"contacts", cfg.Polling.Contacts},
	} {
		fmt.Fprintf(w, "  Polling %s: every %s (%s)\n", p.name, p.cfg.Interval, onOff(p.cfg.On()))
	}

	fmt.Fprintf(w, "  Upload: %s up to %d bytes\n", cfg.Upload.Extension, cfg.Upload.MaxBytes)
	fmt.Fprintf(w, "  Display: %s, %d rows per page\n", cfg.Display.Timezone, cfg.Display.PageSize)
	if cfg.Metrics.Enabled {
		fmt.Fprintf(w, "  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	} else {
		fmt.Fprintln(w, "  Metrics: off")
	}
}
