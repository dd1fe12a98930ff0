package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"sketch-repair/internal/config"
	"sketch-repair/internal/history"
	"sketch-repair/internal/logger"
	"sketch-repair/internal/mcptool"
	"sketch-repair/internal/oracle"
	"sketch-repair/internal/pipeline"
	"sketch-repair/internal/report"
	"sketch-repair/internal/types"
)

var (
	// Version is set at build time
	Version = "dev"

	configPath string
	noBrowser  bool
	noLLM      bool
	showDiff   bool
	verbose    bool
	clearHist  bool

	// exitCode is set by commands that report a repair result.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "sketch-repair <file>",
	Short: "Repair broken p5.js and three.js sketches embedded in HTML",
	Long: `sketch-repair fixes the common ways a generated HTML sketch breaks: entity
encoded tags, CSS outside <style>, malformed stylesheets, unbalanced brackets,
broken CDN references, shader compile errors, undefined variables and calls to
things that are not functions.

The file is backed up to <file>.backup and rewritten only when at least one fix
was applied. The exit status is 0 when something was fixed and 1 otherwise.

Examples:
  sketch-repair index.html              # repair in place
  sketch-repair --diff index.html       # repair and print the line diff
  sketch-repair check index.html        # show what would change
  sketch-repair watch index.html        # repair again on every save
  sketch-repair restore index.html      # put the backup back
  sketch-repair mcp                     # serve repair_html/check_html over stdio`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRepair,
}

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Run every repair pass without touching the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Repair the file now and again whenever it changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file>",
	Short: "Copy the backup over the file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the repair_html and check_html tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the latest repair of each document",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/sketch-repair/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noBrowser, "no-browser", false, "Do not execute the page in a headless browser")
	rootCmd.PersistentFlags().BoolVar(&noLLM, "no-llm", false, "Do not ask the language model for suggestions")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every pass at debug level")
	rootCmd.Flags().BoolVar(&showDiff, "diff", false, "Print a line diff of the repair")
	historyCmd.Flags().BoolVar(&clearHist, "clear", false, "Forget every recorded run")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(checkCmd, watchCmd, restoreCmd, historyCmd, mcpCmd, configCmd)
	rootCmd.Version = Version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Close()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", describeError(err))
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// describeError prefixes application errors with their code.
func describeError(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return fmt.Sprintf("[%s] %s", appErr.Code, appErr.Error())
	}
	return err.Error()
}

// app is what every command works with once the configuration is loaded.
type app struct {
	pipeline *pipeline.Pipeline
	cfg      *types.Config
	history  *history.Store // nil when the store could not be opened
}

// record stores a run in the history. Failures only log.
func (a *app) record(path string, res *types.RepairResult, runErr error) {
	if a.history == nil {
		return
	}
	if err := a.history.Record(path, res, runErr); err != nil {
		logger.Warn("failed to record history", logger.Err(err))
	}
}

// setup loads the configuration, initializes the global logger and builds the
// pipeline with the oracles the configuration and flags allow.
func setup() (*app, error) {
	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		return nil, err
	}
	if err := cm.Load(); err != nil {
		return nil, err
	}
	cfg := cm.GetConfig()

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.Log.Level)
	logCfg.LogFilePath = cfg.Log.File
	logCfg.MaxFileSize = int64(cfg.Log.MaxSizeMB) << 20
	logCfg.MaxBackups = cfg.Log.MaxBackups
	if verbose {
		logCfg.Level = logger.LevelDebug
	}
	if err := logger.Init(logCfg); err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to initialize logger", err)
	}
	log := logger.GetLogger()

	var suggest oracle.Suggester = oracle.Disabled
	if cfg.Suggest.Enabled && !noLLM {
		suggest = oracle.NewEinoSuggester(cfg.Suggest, log)
	}
	var page oracle.PageRunner = oracle.NoPage
	if cfg.Browser.Enabled && !noBrowser {
		page = oracle.NewRodRunner(cfg.Browser, log)
	}

	a := &app{
		cfg: cfg,
		pipeline: pipeline.New(pipeline.Options{
			Suggester:    suggest,
			Page:         page,
			BackupSuffix: cfg.Repair.BackupSuffix,
			Lock:         cfg.Repair.Lock,
			Logger:       log,
		}),
	}
	if a.history, err = history.NewStore(filepath.Dir(cm.GetConfigPath())); err != nil {
		log.Warn("history disabled", logger.Err(err))
		a.history = nil
	}
	return a, nil
}

func runRepair(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	res, err := a.pipeline.Repair(cmd.Context(), args[0])
	a.record(args[0], res, err)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.Render(res))
	if showDiff {
		fmt.Fprint(out, report.Diff(res.Original, res.Repaired))
	}
	exitCode = res.ExitCode()
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	res, err := a.pipeline.Check(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.Render(res))
	fmt.Fprint(out, report.Diff(res.Original, res.Repaired))
	exitCode = res.ExitCode()
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	return watchDocument(cmd.Context(), a.pipeline, args[0], watchDebounce, cmd.OutOrStdout())
}

func runRestore(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if err := a.pipeline.Restore(args[0]); err != nil {
		return err
	}
	if a.history != nil {
		if err := a.history.MarkRestored(args[0]); err != nil {
			logger.Debug("restored document has no history", logger.Err(err))
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", args[0], a.pipeline.BackupPath(args[0]))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	if a.history == nil {
		return types.NewAppError(types.ErrInternal, "history store unavailable", nil)
	}
	if clearHist {
		return a.history.Clear()
	}
	fmt.Fprint(cmd.OutOrStdout(), report.History(a.history.List()))
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	logger.Info("starting MCP server on stdio", logger.String("version", Version))
	return server.ServeStdio(mcptool.NewServer(Version, a.pipeline))
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cm, err := config.NewConfigManager(configPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(cm.GetConfigPath()); err == nil {
		return types.NewAppErrorWithDetails(types.ErrConfig, "config file already exists", cm.GetConfigPath(), nil)
	}
	cm.SetConfig(config.DefaultConfig())
	if err := cm.Save(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cm.GetConfigPath())
	return nil
}
