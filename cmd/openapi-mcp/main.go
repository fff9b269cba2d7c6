package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i2y/openapi-mcp/configs"
)

const (
	transportHTTP  = "http"
	transportStdio = "stdio"
)

var (
	transport  string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "openapi-mcp",
	Short: "An MCP server exposing the operations of an OpenAPI-described HTTP API as tools",
	Long: `openapi-mcp loads an OpenAPI document once at startup, turns every operation into an
MCP tool and forwards each tool call as exactly one HTTP request to BASE_SERVER_URL.
It serves MCP over stateless streamable HTTP (default) or over stdio.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if transport != transportHTTP && transport != transportStdio {
			return fmt.Errorf("invalid transport %q: must be %s or %s", transport, transportHTTP, transportStdio)
		}

		cfg, err := configs.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, transport)
	},
}

func init() {
	rootCmd.Flags().StringVar(&transport, "transport", transportHTTP, "Transport mode: http or stdio")
	rootCmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML config file (overrides CONFIG_FILE)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
