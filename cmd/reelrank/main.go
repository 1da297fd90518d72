// Command reelrank searches Instagram accounts through HikerAPI, ranks each
// account's recent reels and exports the result set.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/FranksOps/reelrank/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgFile string
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:          "reelrank",
		Short:        "Rank Instagram accounts and their top reels via HikerAPI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.String(config.KeyLogLevel, "info", "log level: debug, info, warn or error")
	pf.String(config.KeyLogFormat, "text", "log format: text or json")

	root.AddCommand(newRunCmd(a), newErrorsCmd(a))
	return root
}

// init resolves configuration sources and installs the process logger.
func (a *app) init(cmd *cobra.Command) error {
	// a missing .env is the normal case
	_ = godotenv.Load()

	config.SetDefaults(a.v)
	if err := config.BindEnv(a.v); err != nil {
		return err
	}
	if err := config.ReadFile(a.v, a.cfgFile); err != nil {
		return err
	}
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := a.v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), a.v.GetString(config.KeyLogLevel), a.v.GetString(config.KeyLogFormat))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger = logger
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}
