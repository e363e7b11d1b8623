// Command facegift runs the face recognition gift demo and its
// maintenance tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/config"
	"github.com/ayusman/facegift/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facegift",
	Short: "Face recognition demo that gifts crypto on a snap",
	Long: `facegift watches a camera, tracks the faces it sees and reacts to held
hand gestures: a snap sends a SUI gift to the person in view, a peace sign
texts the recent transcript, and saying the workflow keyword runs a plugin.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
}

func initEnv() {
	// .env is optional
	_ = godotenv.Load()
}

// setup loads the config and builds the logger every command shares.
func setup() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
