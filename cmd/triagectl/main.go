// Command triagectl is the operator CLI for the legal triage service. It
// manages the routing rule set and runs a local chat session against the
// configured inference provider.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wolfman30/legal-triage/cmd/mainconfig"
	"github.com/wolfman30/legal-triage/internal/app/bootstrap"
	appconfig "github.com/wolfman30/legal-triage/internal/config"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newCLI(os.Stdin, os.Stdout, os.Stderr)).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// cli carries the wiring shared by every subcommand.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	loadConfig func() *appconfig.Config
	appOpts    []bootstrap.Option

	logLevel  string
	ruleStore string
	rulesPath string

	cfg     *appconfig.Config
	logger  *logging.Logger
	app     *bootstrap.App
	cleanup func()
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{in: in, out: out, errOut: errOut, loadConfig: appconfig.Load}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "triagectl",
		Short:         "Operate the legal triage router",
		Long:          `triagectl manages routing rules and runs a local triage chat using the same configuration as the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.teardown()
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&c.ruleStore, "rule-store", "", "rule backend override (file, memory, redis, postgres, s3)")
	flags.StringVar(&c.rulesPath, "rules-path", "", "rule file override for the file backend")

	root.AddCommand(newRulesCmd(c), newChatCmd(c))
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	c.cfg = c.loadConfig()
	if c.logLevel != "" {
		c.cfg.LogLevel = c.logLevel
	}
	if c.ruleStore != "" {
		c.cfg.RuleStore = strings.ToLower(strings.TrimSpace(c.ruleStore))
	}
	if c.rulesPath != "" {
		c.cfg.RulesPath = c.rulesPath
	}
	c.logger = logging.NewWithOptions(logging.Options{Level: c.cfg.LogLevel, Format: "text", Output: c.errOut})

	ctx := cmd.Context()
	deps, cleanup, err := mainconfig.ConnectDeps(ctx, c.cfg, c.logger)
	if err != nil {
		return fmt.Errorf("connect dependencies: %w", err)
	}
	c.cleanup = cleanup

	app, err := bootstrap.New(ctx, c.cfg, deps, c.logger, c.appOpts...)
	if err != nil {
		cleanup()
		c.cleanup = nil
		return fmt.Errorf("wire service: %w", err)
	}
	c.app = app
	return nil
}

func (c *cli) teardown() error {
	var err error
	if c.app != nil {
		err = c.app.Close()
		c.app = nil
	}
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
	return err
}
