package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const defaultConfigFile = "/etc/ingestdesk/config.yaml"

var rootCmd = &cobra.Command{
	Use:   "ingestdesk",
	Short: "IngestDesk - admin console for the CSV ingestion platform",
	Long: `IngestDesk lets operators upload CSV files, follow ingestion jobs,
resolve data quality issues and browse imported contacts.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ingestdesk %s (built %s)\n", version, buildTime)
	},
}

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "Path to configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(issuesCmd)
	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
