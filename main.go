package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"malware-hash-feed/config"
	"malware-hash-feed/logging"
)

var longHelp = strings.TrimSpace(`
Collect malware hash indicators (MD5, SHA1, SHA256) from public feeds, APIs
and pages, keep the new ones and publish them as dated JSON documents and
plain hash lists.

A run over unchanged sources adds nothing and writes nothing, so the output
directory can be committed by a scheduled job only when it changed.
`)

var exampleUsage = strings.TrimSpace(`
  hashfeed run --output-dir hashes
  hashfeed run --config hashfeed.toml --strict
  hashfeed sources --check
  hashfeed publish --store sqlite
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func logFailure(err error) {
	log := logging.Logger()
	log.Error().Err(err).Msg("hashfeed")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logFailure(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var cfgPath string

	// resolve applies file and environment settings underneath the flags the
	// user set explicitly, then validates.
	resolve := func(cmd *cobra.Command) (*app, error) {
		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

		if path := config.ConfigPath(cfgPath); path != "" {
			fc, err := config.LoadFileConfig(path)
			if err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
			if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
				return nil, err
			}
		}
		if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
			return nil, err
		}
		if err := logging.SetLevel(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("%w: log-level: %v", config.ErrInvalidConfig, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		log := logging.Logger()
		log.Debug().
			Str("output_dir", cfg.OutputDir).
			Str("store", cfg.Store).
			Dur("timeout", cfg.Timeout).
			Int("retries", cfg.Retries).
			Float64("rate_limit", cfg.RateLimit).
			Bool("strict", cfg.Strict).
			Bool("github_token", cfg.GitHubToken != "").
			Int("sources", len(cfg.EnabledSources())).
			Msg("configuration")
		return newApp(cfg, log), nil
	}

	root := &cobra.Command{
		Use:           "hashfeed",
		Short:         "Collect and publish malware hash indicators",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolve(cmd)
			if err != nil {
				return err
			}
			return a.run(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file, TOML or YAML (default: ./"+config.DefaultConfigFile+" when present)")
	pf.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory the hash files are written to")
	pf.StringVar(&cfg.Store, "store", cfg.Store, "snapshot store backend: csv or sqlite")
	pf.StringVar(&cfg.Allowlist, "allowlist", cfg.Allowlist, "file of known-benign hashes to drop")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	pf.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail the run when any source fails")
	pf.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-request HTTP timeout")
	pf.IntVar(&cfg.Retries, "retries", cfg.Retries, "retries on transient failures")
	pf.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "requests per second per host")
	pf.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent sent to sources")
	pf.StringVar(&cfg.GitHubToken, "github-token", cfg.GitHubToken, "token for github sources (default: $GITHUB_TOKEN)")
	if err := root.PersistentFlags().MarkHidden("user-agent"); err != nil {
		log := logging.Logger()
		log.Info().Err(err).Msg("failed to hide user-agent flag")
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Collect, store and publish (the default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolve(cmd)
				if err != nil {
					return err
				}
				return a.run(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "collect",
			Short: "Collect and append new indicators to the store without publishing",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolve(cmd)
				if err != nil {
					return err
				}
				report, err := a.collect(cmd.Context())
				if report != nil {
					a.summarize()
				}
				return err
			},
		},
		newPublishCmd(resolve),
		newSourcesCmd(resolve),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), root.Version)
			},
		},
	)
	return root
}

func newPublishCmd(resolve func(*cobra.Command) (*app, error)) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Rewrite the hash lists and stats from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolve(cmd)
			if err != nil {
				return err
			}
			return a.republish(cmd.Context(), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rewrite stats.json and SUMMARY.md even when present")
	return cmd
}

func newSourcesCmd(resolve func(*cobra.Command) (*app, error)) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolve(cmd)
			if err != nil {
				return err
			}
			return a.listSources(cmd.Context(), cmd.OutOrStdout(), check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "probe each source and report its status")
	return cmd
}
