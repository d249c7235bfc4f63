package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-provisioning/core"
	"github.com/goliatone/go-provisioning/readiness"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

type serveFlags struct {
	adminToken      string
	accountCacheTTL time.Duration
}

func main() {
	gin.SetMode(gin.ReleaseMode)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stderr, os.LookupEnv).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(exitCode(err))
}

func newRootCommand(logOut io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "provisioner",
		Short:         "Tenant-scoped datastore provisioning service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "json", "log format (json, text)")

	root.AddCommand(newServeCommand(flags, logOut, lookup), newWaitCommand(flags, logOut, lookup))
	return root
}

func newServeCommand(flags *rootFlags, logOut io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	serve := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Wait for dependencies, then serve the provisioning API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := prepare(ctx, flags, logOut, lookup)
			if err != nil {
				return err
			}
			if serve.adminToken == "" {
				serve.adminToken, _ = lookup(envPrefix + "ADMIN_TOKEN")
			}
			endpoints, err := readiness.ParseEndpoints(cfg.Readiness.Endpoints)
			if err != nil {
				return err
			}

			coordinator := newCoordinator(cfg, logger)
			return coordinator.Run(ctx, endpoints, func(ctx context.Context) error {
				rt, err := buildRuntime(ctx, cfg, runtimeOptions{
					logger:          logger,
					adminToken:      serve.adminToken,
					accountCacheTTL: serve.accountCacheTTL,
				})
				if err != nil {
					return err
				}
				defer rt.Close()
				return rt.server.Serve(ctx, cfg.HTTP.Address)
			})
		},
	}
	cmd.Flags().StringVar(&serve.adminToken, "admin-token", "", "bearer token for the /admin API (defaults to PROVISIONER_ADMIN_TOKEN)")
	cmd.Flags().DurationVar(&serve.accountCacheTTL, "account-cache-ttl", 0, "cache account lookups for this long (0 disables)")
	return cmd
}

func newWaitCommand(flags *rootFlags, logOut io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Block until every readiness endpoint accepts connections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := prepare(ctx, flags, logOut, lookup)
			if err != nil {
				return err
			}
			endpoints, err := readiness.ParseEndpoints(cfg.Readiness.Endpoints)
			if err != nil {
				return err
			}
			return newCoordinator(cfg, logger).Run(ctx, endpoints, func(context.Context) error {
				logger.Info("dependencies ready", "endpoints", len(endpoints))
				return nil
			})
		},
	}
}

func prepare(ctx context.Context, flags *rootFlags, logOut io.Writer, lookup func(string) (string, bool)) (core.Config, glog.Logger, error) {
	logger := newLogger(logOut, flags.logLevel, flags.logFormat)
	cfg, err := loadConfig(ctx, flags.configPath, lookup)
	if err != nil {
		return core.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newCoordinator(cfg core.Config, logger glog.Logger) *readiness.Coordinator {
	probe := readiness.NewProbe(readiness.WithLogger(logger))
	return readiness.NewCoordinator(probe, readinessPolicy(cfg.Readiness), readiness.WithCoordinatorLogger(logger))
}
