package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootConfig struct {
	configPath string
	logLevel   string
	pidFile    string
}

func newRootCmd() *cobra.Command {
	cfg := &rootConfig{}
	cmd := &cobra.Command{
		Use:           "relaylinkd",
		Short:         "Onion-routing relay connection daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVarP(&cfg.configPath, "config", "c", "", "path to YAML config file (defaults built in if empty)")
	f.StringVar(&cfg.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	f.StringVar(&cfg.pidFile, "pid-file", "", "path tableflip should track the upgraded PID in")

	cmd.AddCommand(newRunCmd(cfg))
	return cmd
}

func buildLogger(level string) (*zap.Logger, error) {
	var zcfg zap.Config
	switch level {
	case "debug":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
		if level != "" {
			var lvl zap.AtomicLevel
			if err := lvl.UnmarshalText([]byte(level)); err != nil {
				return nil, fmt.Errorf("log level %q: %w", level, err)
			}
			zcfg.Level = lvl
		}
	}
	return zcfg.Build()
}
