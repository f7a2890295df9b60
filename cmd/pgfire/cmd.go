package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapilratnani/pgfire/internal/conf"
	"github.com/kapilratnani/pgfire/internal/logging"
)

var (
	// version, commit and date are set using -ldflags, matching the
	// teacher's cmd.go build-info variables.
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	cpath string
)

// Cmd is the entry point for the CLI, matching the teacher's
// root-command-plus-subcommand shape (cmd/cmd.go), trimmed to the serve
// and version subcommands.
func Cmd() {
	log = logging.New(false).Sugar()

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "pgfire",
		Short: "JSON path storage engine over Postgres",
	}
	rootCmd.PersistentFlags().StringVar(&cpath, "path", "./config", "path to the config directory")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			log.Infof("version=%s commit=%s date=%s", version, commit, date)
		},
	}
}

// loadConfig reads <cpath>/pgfire.json via internal/conf.
func loadConfig() *conf.Config {
	c, err := conf.Load(filepath.Join(cpath, "pgfire.json"))
	if err != nil {
		log.Fatalf("loading config: %s", err)
	}
	return c
}
