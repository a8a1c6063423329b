// Command qrpay is the terminal client for scanning and paying merchant QR
// codes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/qrpay/internal/app"
	"github.com/harrylevesque/qrpay/internal/config"
)

var Version = "dev"

type globalFlags struct {
	configPath string
	server     string
	dataDir    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags
	rootCmd := &cobra.Command{
		Use:           "qrpay",
		Short:         "qrpay - scan a merchant QR code and pay",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default ~/.qrpay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "", "Override server base URL (e.g. https://pay.example.com)")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Override data directory")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(loginCmd(&flags))
	rootCmd.AddCommand(registerCmd(&flags))
	rootCmd.AddCommand(logoutCmd(&flags))
	rootCmd.AddCommand(whoamiCmd(&flags))
	rootCmd.AddCommand(payCmd(&flags))
	rootCmd.AddCommand(historyCmd(&flags))
	return rootCmd
}

// loadConfig applies, in order: defaults, the config file, QRPAY_* variables
// and command-line flags.
func loadConfig(flags *globalFlags) (config.Config, error) {
	var cfg config.Config
	var err error
	if flags.configPath != "" {
		cfg, err = config.Load(flags.configPath)
	} else {
		cfg, err = config.LoadOrDefault(config.DefaultPath())
	}
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if flags.server != "" {
		cfg.ServerURL = flags.server
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	return cfg, nil
}

// withApp runs fn with an App built from the flags and closes it afterwards.
func withApp(flags *globalFlags, fn func(a *app.App) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "Warning:", err)
		}
	}()
	return fn(a)
}
