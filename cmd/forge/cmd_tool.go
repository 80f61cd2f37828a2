package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"forgeloop/internal/sandbox"
)

var (
	toolTimeoutMs int
	toolAllow     []string
	toolBlock     []string
	toolWorkDir   string
)

// toolCmd runs one command through the L3 sandbox
var toolCmd = &cobra.Command{
	Use:   "tool [name] [args...]",
	Short: "Run a command through the sandboxed tool layer",
	Long: `Executes a single command through the L3 sandbox: the allow/block
policy is applied first, then the command runs under the per-attempt timeout
with exponential backoff on retryable failures.

Example:
  forge tool go test ./...
  forge tool --block rm -- rm -rf build/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTool,
}

func init() {
	toolCmd.Flags().IntVar(&toolTimeoutMs, "timeout-ms", 0, "per-attempt timeout override")
	toolCmd.Flags().StringSliceVar(&toolAllow, "allow", nil, "tool allow list (empty allows all)")
	toolCmd.Flags().StringSliceVar(&toolBlock, "block", nil, "tool block list (always wins)")
	toolCmd.Flags().StringVar(&toolWorkDir, "workdir", "", "working directory for the command")

	rootCmd.AddCommand(toolCmd)
}

func runTool(cmd *cobra.Command, args []string) error {
	cfg := sandbox.DefaultConfig()
	cfg.AllowList = toolAllow
	cfg.BlockList = toolBlock

	sb := sandbox.New(cfg, sandbox.NewCommandExecutor(""))

	req := sandbox.ToolRequest{
		ToolName:  args[0],
		TimeoutMs: toolTimeoutMs,
		Args: map[string]any{
			"argv": args[1:],
		},
	}
	if toolWorkDir != "" {
		req.Args["working_dir"] = toolWorkDir
	}

	result := sb.Execute(cmd.Context(), req)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if !result.Success {
		fmt.Fprintf(os.Stderr, "tool %s failed (exit %d)\n", strings.Join(args, " "), result.ExitCode)
		os.Exit(1)
	}
	return nil
}
