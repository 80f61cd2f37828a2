package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"forgeloop/internal/gates"
	"forgeloop/internal/hierarchy"
	"forgeloop/internal/intent"
	"forgeloop/internal/lifecycle"
	"forgeloop/internal/llm"
	"forgeloop/internal/logging"
	"forgeloop/internal/orchestrator"
)

var (
	// Global flags
	verbose    bool
	configPath string
	apiKey     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forgeloop - hierarchical build orchestrator",
	Long: `forgeloop is the control plane of a multi-agent build orchestrator.

It parses raw requests into confidence-scored intents (L0), routes tasks
through a configurable supervisor/worker hierarchy, executes tools in a
policy-checked sandbox (L3), and validates every produced response against
an ordered gate pipeline before accepting it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		return logging.Initialize(logging.Config{Level: level, Development: true})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// validateCmd checks a hierarchy config file
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the hierarchy configuration",
	Long: `Loads the hierarchy config and reports every validation error found:
layer levels, escalation policy, trigger vocabulary, and timeout budgets.
Exits non-zero when the config is invalid.`,
	RunE: runValidate,
}

// intentCmd parses input without executing anything
var intentCmd = &cobra.Command{
	Use:   "intent [input]",
	Short: "Parse input into a structured intent",
	Long: `Runs the L0 intent parser on the given input and prints the resulting
intent as JSON: type, scope, constraints, confidence, and whether the input
would trigger the clarification loop. Nothing is executed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIntent,
}

// wireCmd reports lifecycle adapter wiring
var wireCmd = &cobra.Command{
	Use:   "wire",
	Short: "Show which feature adapters would be wired",
	Long: `Wires the enabled feature adapters into the hook registry and reports
the result: adapters wired, features skipped, hooks registered, and any
per-module factory failures. With --dry-run no factory is invoked.`,
	RunE: runWire,
}

// runCmd drives one build through the full loop
var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Run one build from raw input",
	Long: `Drives the full build loop on the given input:
  1. Parse the input into an intent, clarifying interactively if needed
  2. Split compound input into per-fragment tasks
  3. Dispatch tasks across the execution layer (or flat mode)
  4. Gate every response and escalate failures per policy`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

// watchCmd revalidates the hierarchy config on change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the hierarchy config and revalidate on change",
	RunE:  runWatch,
}

var (
	wireDryRun   bool
	wireFeatures []string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "forgeloop.yaml", "hierarchy config file")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("FORGELOOP_API_KEY"), "LLM API key")

	wireCmd.Flags().BoolVar(&wireDryRun, "dry-run", false, "report wiring without invoking factories")
	wireCmd.Flags().StringSliceVar(&wireFeatures, "enable", []string{string(lifecycle.FeatureObservability)}, "features to enable")

	rootCmd.AddCommand(validateCmd, intentCmd, wireCmd, runCmd, watchCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := hierarchy.Load(configPath)
	if err != nil {
		return err
	}

	result := hierarchy.Validate(cfg)
	if result.Valid {
		fmt.Printf("config OK: %d layers, policy=%s, flat_mode=%v\n",
			len(cfg.Layers), cfg.EscalationPolicy, hierarchy.ShouldUseFlatMode(cfg))
		return nil
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(os.Stderr, "invalid: %s\n", msg)
	}
	return fmt.Errorf("config has %d validation error(s)", len(result.Errors))
}

func runIntent(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")
	parser := intent.NewParser(intent.DefaultParserConfig())

	it := parser.Parse(input)
	fragments := intent.DetectMultiIntent(input)

	out, err := json.MarshalIndent(map[string]any{
		"intent":    it,
		"fragments": fragments,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runWire(cmd *cobra.Command, args []string) error {
	enabled := make(map[lifecycle.Feature]bool, len(wireFeatures))
	for _, name := range wireFeatures {
		enabled[lifecycle.Feature(name)] = true
	}
	opts := lifecycle.WireOptions{
		Enabled:   enabled,
		Factories: builtinFactories(),
	}

	var result lifecycle.WiringResult
	if wireDryRun {
		result = lifecycle.WiringSummary(opts)
	} else {
		result = lifecycle.WireAdapters(lifecycle.NewHookRegistry(), opts)
	}

	fmt.Printf("wired:   %v\n", result.AdaptersWired)
	fmt.Printf("skipped: %v\n", result.Skipped)
	fmt.Printf("hooks:   %d\n", result.HookCount)
	for _, we := range result.Errors {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", we.Feature, we.Err)
	}
	return nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")

	cfg, err := hierarchy.Load(configPath)
	if err != nil {
		return err
	}
	if result := hierarchy.Validate(cfg); !result.Valid {
		return fmt.Errorf("invalid hierarchy config: %s", strings.Join(result.Errors, "; "))
	}

	var caller llm.Caller
	if apiKey != "" {
		caller = llm.NewHTTPCaller(llm.DefaultHTTPConfig(apiKey))
	}

	registry := lifecycle.NewHookRegistry()
	lifecycle.WireAdapters(registry, lifecycle.WireOptions{
		Enabled:   map[lifecycle.Feature]bool{lifecycle.FeatureObservability: true},
		Factories: builtinFactories(),
	})

	parser := intent.NewParser(intent.DefaultParserConfig())
	gateRunner := gates.NewRunner(gates.DefaultConfig(), caller)

	loop, err := orchestrator.NewLoop(cfg, parser, newAgentExecutor(caller), gateRunner, registry)
	if err != nil {
		return err
	}
	loop.SetClarificationProvider(stdinProvider())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := loop.Run(ctx, input)
	if err != nil {
		return err
	}

	for i := range result.Tasks {
		task := &result.Tasks[i]
		status := "ok"
		if !task.Passed() {
			status = "failed"
		}
		fmt.Printf("[%s] %s (%s): %s\n", status, task.Task.ID, task.Task.Agent, gates.GatesSummary(task.Gates))
	}
	if !result.Succeeded() {
		return fmt.Errorf("build %s failed", result.BuildID)
	}
	fmt.Printf("build %s succeeded (%d tasks)\n", result.BuildID, len(result.Tasks))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	watcher, err := hierarchy.NewWatcher(configPath, func(cfg *hierarchy.Config, result hierarchy.ValidationResult) {
		if result.Valid {
			fmt.Printf("config reloaded: %d layers\n", len(cfg.Layers))
			return
		}
		fmt.Fprintf(os.Stderr, "config change rejected: %s\n", strings.Join(result.Errors, "; "))
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("watching %s (ctrl-c to stop)\n", configPath)
	<-ctx.Done()
	return nil
}

// stdinProvider answers clarification questions interactively.
func stdinProvider() intent.ClarificationProvider {
	reader := bufio.NewReader(os.Stdin)
	return intent.ProviderFunc(func(ctx context.Context, it *intent.Intent) (string, error) {
		fmt.Printf("clarify %q (confidence %.2f): ", it.RawInput, it.Confidence)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
