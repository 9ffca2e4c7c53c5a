// Package cli implements the tony command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tony-assistant/console/internal/api"
	"github.com/tony-assistant/console/internal/config"
	"github.com/tony-assistant/console/internal/journal"
	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/metrics"
	"github.com/tony-assistant/console/internal/prefs"
	"github.com/tony-assistant/console/internal/session"
)

// app carries global flags and the state built from them.
type app struct {
	version string

	configFile string
	apiURL     string
	token      string
	operator   string
	logLevel   string
	logFormat  string
	jsonOutput bool

	cfg     *config.Config
	prefs   *prefs.Manager
	logFile *os.File
}

// Execute runs the CLI with args. No arguments opens the console UI.
func Execute(version string, args []string) error {
	if len(args) == 0 {
		args = []string{"ui"}
	}
	root, a := newRootCmd(version)
	root.SetArgs(args)
	return a.execute(context.Background(), root)
}

// execute runs root and releases what setup opened, whether or not the
// command failed.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if closeErr := a.teardown(); err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(version string) (*cobra.Command, *app) {
	a := &app{version: version}

	cmd := &cobra.Command{
		Use:           "tony",
		Short:         "Operator console for the Tony customer-service assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ~/.config/tony/config.yaml)")
	flags.StringVar(&a.apiURL, "api-url", "", "backend base URL")
	flags.StringVar(&a.token, "token", "", "bearer token for the backend")
	flags.StringVar(&a.operator, "operator", "", "operator id")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (console, json)")
	flags.BoolVar(&a.jsonOutput, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		newUICmd(a),
		newConversationsCmd(a),
		newShowCmd(a),
		newSendCmd(a),
		newEditCmd(a),
		newModeCmd(a),
		newPendingCmd(a),
		newQuickResponsesCmd(a),
		newHealthCmd(a),
		newWatchCmd(a),
		newBulkCmd(a),
		newExportCmd(a),
		newJournalCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newThemeCmd(a),
		newDevServerCmd(a),
	)
	return cmd, a
}

func (a *app) setup(cmd *cobra.Command) error {
	loader := config.NewLoader()
	if a.configFile != "" {
		loader.SetConfigFile(a.configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return &ExitError{Code: ExitCodeUsage, Err: err}
	}

	if a.apiURL != "" {
		cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(a.apiURL), "/")
	}
	if a.token != "" {
		cfg.API.Token = a.token
	}
	if a.operator != "" {
		cfg.API.OperatorID = a.operator
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return &ExitError{Code: ExitCodeUsage, Err: fmt.Errorf("config validation failed: %w", err)}
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(cmd.Name() == "ui"); err != nil {
		return err
	}
	logger := logging.Component("cli").With().Str("command", cmd.CommandPath()).Logger()
	cmd.SetContext(logging.WithContext(cmd.Context(), logger))

	a.prefs = prefs.New(cfg.PrefsPath())
	if err := a.prefs.Load(); err != nil {
		logger.Warn().Err(err).Str("path", cfg.PrefsPath()).Msg("failed to load preferences")
	}

	logger.Debug().Fields(logging.RedactMap(map[string]any{
		"config_file": loader.ConfigFileUsed(),
		"api_url":     cfg.API.BaseURL,
		"token":       a.resolvedToken(),
		"operator":    a.operatorID(),
		"data_dir":    cfg.Global.DataDir,
	})).Msg("configuration loaded")
	return nil
}

// initLogging routes logs to stderr, or for the full-screen UI to the
// configured log file or nowhere.
func (a *app) initLogging(fullscreen bool) error {
	lc := logging.Config{
		Level:        a.cfg.Logging.Level,
		Format:       a.cfg.Logging.Format,
		EnableCaller: a.cfg.Logging.EnableCaller,
	}
	if a.cfg.Logging.File != "" {
		f, err := logging.OpenFile(a.cfg.Logging.File)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		lc.Output = f
		lc.Format = "json"
	} else if fullscreen {
		logging.Discard()
		return nil
	}
	logging.Init(lc)
	return nil
}

func (a *app) teardown() error {
	if a.logFile == nil {
		return nil
	}
	logging.Discard()
	err := a.logFile.Close()
	a.logFile = nil
	return err
}

// resolvedToken picks the flag or config token, then the saved login.
func (a *app) resolvedToken() string {
	if a.cfg.API.Token != "" {
		return a.cfg.API.Token
	}
	if a.prefs != nil {
		return a.prefs.Token()
	}
	return ""
}

// operatorID prefers an explicit flag, then the token's claims, then config.
func (a *app) operatorID() string {
	if a.operator != "" {
		return a.operator
	}
	if id := operatorFromToken(a.resolvedToken()); id != "" {
		return id
	}
	if a.cfg.API.OperatorID != "" {
		return a.cfg.API.OperatorID
	}
	return config.DefaultOperatorID
}

func (a *app) newClient() (*api.Client, error) {
	return api.New(api.Options{
		BaseURL:   a.cfg.API.BaseURL,
		Token:     a.resolvedToken(),
		Timeout:   a.cfg.API.Timeout,
		UserAgent: "tony-console/" + a.version,
		Observe: func(op string, kind api.ErrorKind, elapsed time.Duration) {
			metrics.ObserveRequest(op, string(kind), elapsed)
		},
	})
}

// newSession builds a session and returns a cleanup func that closes it
// together with the journal.
func (a *app) newSession(ctx context.Context) (*session.Session, func(), error) {
	client, err := a.newClient()
	if err != nil {
		return nil, nil, err
	}

	opts := session.Options{
		OperatorID:        a.operatorID(),
		PollInterval:      a.cfg.Session.PollInterval,
		NotificationLimit: a.cfg.Session.NotificationLimit,
		BulkConcurrency:   a.cfg.Session.BulkConcurrency,
	}
	var j *journal.Journal
	if a.cfg.Journal.Enabled {
		j, err = journal.Open(a.cfg.JournalPath())
		if err != nil {
			logger := logging.FromContext(ctx)
			logger.Warn().Err(err).Msg("journal unavailable, continuing without it")
		} else {
			opts.Journal = j
		}
	}

	sess := session.New(client, opts)
	cleanup := func() {
		_ = sess.Close()
		if j != nil {
			_ = j.Close()
		}
	}
	return sess, cleanup, nil
}

// loadSession builds a session and performs the initial load.
func (a *app) loadSession(ctx context.Context) (*session.Session, func(), error) {
	sess, cleanup, err := a.newSession(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Load(ctx); err != nil {
		cleanup()
		return nil, nil, &ExitError{Code: ExitCodeFailure, Err: fmt.Errorf("backend unreachable at %s: %w", a.cfg.API.BaseURL, err)}
	}
	return sess, cleanup, nil
}

func (a *app) serveMetrics(ctx context.Context) {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr); err != nil {
			logger := logging.FromContext(ctx)
			logger.Warn().Err(err).Str("addr", addr).Msg("metrics endpoint stopped")
		}
	}()
}

func (a *app) output(cmd *cobra.Command, v any, table func(io.Writer) error) error {
	out := cmd.OutOrStdout()
	if a.jsonOutput {
		return writeJSON(out, v)
	}
	return table(out)
}
