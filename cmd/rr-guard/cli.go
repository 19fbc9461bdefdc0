package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/config"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/cache/bolt"
	"github.com/haukened/rr-guard/internal/guard/repos/rules/parsers"
	"github.com/haukened/rr-guard/internal/guard/services/firewall"
)

// version is set at build time via ldflags
var version = "0.1.0-dev"

const appName = "rr-guard"

// decisionOutput is the printed form of a decision.
type decisionOutput struct {
	Address string `yaml:"address"`
	Query   string `yaml:"query"`
	Verdict string `yaml:"verdict"`
	Pattern string `yaml:"pattern,omitempty"`
	Mode    string `yaml:"mode"`
}

// cli carries state shared by the subcommands of one invocation.
type cli struct {
	cfg     *config.AppConfig
	verbose bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   appName,
		Short: "rr-guard: address and query string access control",
		Long: `rr-guard decides whether a request is allowed by testing its origin
address and query string against an ordered list of wildcard rules.
Rules come from a YAML, JSON or TOML rule file and from the allow/deny
lines of existing nginx configuration. Settings are read from GUARD_*
environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if c.verbose {
				cfg.LogLevel = "debug"
			}
			if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
				return fmt.Errorf("logging configuration error: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(c.checkCmd(), c.importCmd(), c.purgeCmd(), versionCmd())
	return root
}

func (c *cli) checkCmd() *cobra.Command {
	var (
		address, query, rulesFile, defaultMode, output string
		nginxFiles                                     []string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decide a single address and query string",
		Long: `Check prints the decision for one request context. The exit status is
0 when the request is allowed and 2 when it is denied.`,
		Example: `  rr-guard check --rules rules.yaml --address 192.168.1.5 --query 'x=1'
  rr-guard check --nginx /etc/nginx/conf.d/access.conf --address 10.0.0.1 -o text`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rulesFile != "" {
				c.cfg.RulesFile = rulesFile
			}
			c.cfg.NginxFiles = append(c.cfg.NginxFiles, nginxFiles...)

			app, err := buildApplication(c.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Warn(map[string]any{"error": err.Error()}, "error closing cache driver")
				}
			}()

			if defaultMode != "" {
				m, err := domain.ParseMode(defaultMode)
				if err != nil {
					return err
				}
				if err := app.registry.SetDefaultMode(m); err != nil {
					return err
				}
			}

			fw, err := firewall.New(firewall.Options{
				Context:  domain.RequestContext{Address: address, Query: query},
				Registry: app.registry,
				Cache:    app.driver,
				TTL:      app.config.TTL(),
				Matcher:  app.matcher,
				Logger:   app.logger,
			})
			if err != nil {
				return err
			}

			d, err := fw.Debug().Decide(cmd.Context())
			if err != nil {
				return err
			}
			if err := printDecision(cmd, output, fw.Context(), d); err != nil {
				return err
			}
			return verdict(fw.Context(), d)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "origin address to check")
	cmd.Flags().StringVar(&query, "query", "", "raw query string to check")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "rule file (YAML, JSON or TOML), overrides GUARD_RULES_FILE")
	cmd.Flags().StringSliceVar(&nginxFiles, "nginx", nil, "nginx configuration file to import (repeatable)")
	cmd.Flags().StringVar(&defaultMode, "default", "", "default mode when no rule matches: allow or deny")
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: yaml or text")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}

// verdict turns a decision into the error that sets the exit status.
func verdict(rc domain.RequestContext, d domain.Decision) error {
	if d.Allowed {
		return nil
	}
	return &domain.ForbiddenError{Address: rc.Address, Mode: d.Mode, Pattern: d.Pattern}
}

func printDecision(cmd *cobra.Command, format string, rc domain.RequestContext, d domain.Decision) error {
	out := decisionOutput{
		Address: rc.Address,
		Query:   rc.Query,
		Verdict: domain.ModeDeny.String(),
		Pattern: d.Pattern,
		Mode:    d.Mode,
	}
	if d.Allowed {
		out.Verdict = domain.ModeAllow.String()
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(out)
	case "text":
		pattern := out.Pattern
		if pattern == "" {
			pattern = "-"
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%s)\n", out.Verdict, out.Address, pattern, out.Mode)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func (c *cli) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Print the rules found in an nginx configuration file",
		Long: `Import extracts the allow/deny directives of an nginx configuration file
and prints them as a rule file that can be used with --rules.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return &domain.NotFoundError{Path: path}
			}
			defer f.Close()

			found, err := parsers.ParseNginx(f, path, log.GetLogger())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(parsers.RuleFile{Rules: parsers.Entries(found)})
		},
	}
}

func (c *cli) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired decisions from the bolt cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.CacheDriver != bolt.DriverName {
				return fmt.Errorf("purge requires the bolt cache driver, configured: %s", c.cfg.CacheDriver)
			}
			store, err := bolt.New(bolt.Options{Path: c.cfg.CachePath, FPRate: bloomFPRate})
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Purge()
			if err != nil {
				return err
			}
			log.Info(map[string]any{"removed": n, "path": c.cfg.CachePath}, "expired decisions purged")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
			return err
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of rr-guard",
		Args:  cobra.NoArgs,
		// version does not need configuration
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case isForbidden(err):
		return 2
	default:
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
}
