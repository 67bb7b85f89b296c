package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"link2ur.backend/internal/config"
	"link2ur.backend/pkg/logger"
)

var version = "dev"

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "link2ur",
		Short:         "Link2Ur task marketplace backend",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newJobCmd())
	root.AddCommand(newSessionCmd())
	root.AddCommand(newUserCmd())
	root.AddCommand(newStaffCmd())
	return root
}

// loadConfig reads .env when present, parses the configuration and
// initialises the logger.
func loadConfig() (*config.Config, error) {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg, err := loadCfg()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLog(cfg.Server.Env)
	return cfg, nil
}
