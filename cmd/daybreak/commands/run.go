package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/daybreak/internal/config"
	"github.com/marcus/daybreak/internal/history"
	"github.com/marcus/daybreak/internal/logging"
	"github.com/marcus/daybreak/internal/provider"
)

var (
	runProviderFlag string
	runTimeoutFlag  time.Duration
	runSchemaFlag   string
	runCwdFlag      string
	runSandboxFlag  string
	runJSONFlag     bool
	runNoHistory    bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Execute a prompt against a configured provider",
	Long: `Execute a single prompt against a configured provider.

The prompt is taken from the argument, or from stdin when the argument
is "-" or absent. The process exit code mirrors the backend exit code,
so shell pipelines can branch on failure.

Use --schema to attach a JSON schema the output should conform to and
--json to print the full result as JSON instead of the raw output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runProviderFlag, "provider", "p", "", "Provider name (default from config)")
	runCmd.Flags().DurationVarP(&runTimeoutFlag, "timeout", "t", 0, "Per-run timeout override")
	runCmd.Flags().StringVar(&runSchemaFlag, "schema", "", "Path to a JSON schema for the output")
	runCmd.Flags().StringVar(&runCwdFlag, "cwd", "", "Working directory for local providers")
	runCmd.Flags().StringVar(&runSandboxFlag, "sandbox", "", "Sandbox mode for local providers")
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "Print the full result as JSON")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Skip recording this run in history")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Component("run")

	prompt, err := readPrompt(args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	name := runProviderFlag
	if name == "" {
		name = cfg.Defaults.Provider
	}
	if name == "" {
		return fmt.Errorf("no provider given and no default configured")
	}

	p, err := buildProvider(cfg, name)
	if err != nil {
		return err
	}

	opts := provider.RunOptions{
		Cwd:     runCwdFlag,
		Sandbox: runSandboxFlag,
		Timeout: runTimeoutFlag,
	}
	if runSchemaFlag != "" {
		schema, err := readSchema(runSchemaFlag)
		if err != nil {
			return err
		}
		opts.OutputSchema = schema
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := p.Run(ctx, prompt, opts)
	if err != nil {
		return err
	}

	if cfg.History.Enabled && !runNoHistory {
		recordRun(cfg, p.Descriptor(), prompt, result, log)
	}

	if err := printResult(result); err != nil {
		return err
	}

	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

// buildProvider resolves a config entry into a ready provider.
func buildProvider(cfg *config.Config, name string) (*provider.Provider, error) {
	entry, ok := cfg.Provider(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	desc, err := entry.Descriptor()
	if err != nil {
		return nil, err
	}
	return provider.New(desc, cfg.Options()...)
}

func readPrompt(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	return string(data), nil
}

func readSchema(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return schema, nil
}

func printResult(result *provider.Result) error {
	if runJSONFlag {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if result.Error != "" {
		fmt.Fprintln(os.Stderr, "error:", result.Error)
	}
	if result.Warning != "" {
		fmt.Fprintln(os.Stderr, "warning:", result.Warning)
	}
	if result.Parsed != nil {
		fmt.Println(string(result.Parsed))
	} else if result.Raw != "" {
		fmt.Println(result.Raw)
	}
	return nil
}

func recordRun(cfg *config.Config, desc provider.Descriptor, prompt string, result *provider.Result, log *logging.Logger) {
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		log.Warnf("history unavailable: %v", err)
		return
	}
	defer store.Close()

	rec := history.Record{
		Provider:   desc.Name,
		Kind:       string(desc.Kind),
		Model:      desc.Model,
		Prompt:     prompt,
		ExitCode:   result.ExitCode,
		Cost:       result.Cost,
		DurationMs: result.Duration.Milliseconds(),
		Error:      result.Error,
	}
	if result.TokenUsage != nil {
		rec.InputTokens = result.TokenUsage.Input
		rec.OutputTokens = result.TokenUsage.Output
	}

	if _, err := store.Append(context.Background(), rec); err != nil {
		log.Warnf("record run: %v", err)
	}
}
