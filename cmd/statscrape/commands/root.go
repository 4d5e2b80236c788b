package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"statscrape/internal/app"
	"statscrape/internal/shared/config"
	"statscrape/internal/shared/logger"
	"statscrape/internal/shared/types"
)

const iniName = "statscrape.ini"

var (
	configDir string
	cfg       *types.Config
)

var rootCmd = &cobra.Command{
	Use:           "statscrape",
	Short:         "statscrape fetches sports-statistics pages and extracts fields with XPath.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(configDir)
		if err != nil {
			return err
		}
		cfg = loaded
		return logger.Init(cfg.LogConf)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "configdir", "configs", "Path to config directory")
}

// loadConfig applies statscrape.ini over the defaults. A missing ini file
// leaves the defaults (plus environment overrides) in place.
func loadConfig(dir string) (*types.Config, error) {
	c := types.DefaultConfig()
	iniPath := filepath.Join(dir, iniName)
	if _, err := os.Stat(iniPath); errors.Is(err, fs.ErrNotExist) {
		config.ApplyEnv(c)
		return c, nil
	}
	if err := config.LoadIni(c, iniPath); err != nil {
		return nil, fmt.Errorf("failed to load config file '%s': %w", iniPath, err)
	}
	return c, nil
}

func newApp() (*app.App, error) {
	return app.New(cfg, configDir)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
