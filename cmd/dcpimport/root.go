package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dcpinventory-desktop/internal/bootstrap"
	"dcpinventory-desktop/internal/config"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	EnvFiles []string
	APIURL   string
	Verbose  bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "dcpimport",
		Short:         "Import DCP school lists and contact sheets into the inventory backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&g.EnvFiles, "env-file", config.DefaultEnvFiles, "env files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&g.APIURL, "api-url", "", "backend base URL (overrides DCP_API_URL)")
	cmd.PersistentFlags().BoolVarP(&g.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newLoginCmd(g))
	cmd.AddCommand(newLogoutCmd(g))
	cmd.AddCommand(newPreviewCmd(g))
	cmd.AddCommand(newUploadCmd(g))
	cmd.AddCommand(newContactsCmd(g))
	return cmd
}

// open loads configuration, applies flag overrides and wires the services
func (g *globalOptions) open(ctx context.Context, tweak func(*config.Configuration)) (*bootstrap.Runtime, error) {
	cfg, err := config.Load(g.EnvFiles...)
	if err != nil {
		return nil, err
	}
	if g.APIURL != "" {
		cfg.API.BaseURL = g.APIURL
	}
	if g.Verbose {
		cfg.LogLevel = "debug"
	}
	if tweak != nil {
		tweak(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, nil)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		stop()
		os.Exit(1)
	}
}
