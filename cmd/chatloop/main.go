// Package main provides the CLI entry point for the chatloop control plane.
//
// Chatloop gives every conversation its own identity and its own decision
// loop: messages are routed into isolated per-tenant streams, and each
// active stream runs a planning cycle that decides whether to reply, act,
// or stay quiet.
//
// # Basic Usage
//
// Start the control plane:
//
//	chatloop serve --config chatloop.yaml
//
// Inspect the loaded agent definitions:
//
//	chatloop agents list
//
// # Environment Variables
//
//   - CHATLOOP_CONFIG: Path to configuration file (default: chatloop.yaml)
//   - OPENAI_API_KEY: API key for the OpenAI-compatible model endpoint
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A .env file is a development convenience; its absence is normal.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatloop",
		Short: "Chatloop - per-stream conversational control plane",
		Long: `Chatloop routes platform messages into isolated per-tenant chat streams
and runs one supervised planning loop per active stream.

Each loop watches its stream's buffer, decides when the agent should
speak, plans actions with an LLM, and executes them concurrently.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildAgentsCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}

// resolveConfigPath applies the CHATLOOP_CONFIG fallback when no --config
// flag was given.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("CHATLOOP_CONFIG"); env != "" {
		return env
	}
	return "chatloop.yaml"
}
