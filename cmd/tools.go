package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-pipeline/internal/agent"
)

// newToolsCmd creates the command that enumerates the tools a server
// exposes. Useful for checking what a pipeline server offers before wiring
// it into a run.
func newToolsCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools an MCP server exposes",
		Long: `Connects to an MCP server (running the OAuth flow if the server
requires authorization) and prints the tools it advertises.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateEndpoint(endpoint); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			setupSignalHandler(cancel)

			logger := agent.NewLogger(verbose, !noColor, jsonRPC)

			client := agent.NewClient(agent.ClientConfig{
				Name:     "tools",
				Endpoint: endpoint,
				Logger:   logger,
				OAuth:    buildOAuthConfig(cmd, logger, 0),
				Version:  version,
			})
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer func() { _ = client.Close() }()

			if !client.ServerSupportsTools() {
				return fmt.Errorf("server does not support tools capability")
			}

			tools, err := client.ListTools(ctx)
			if err != nil {
				return fmt.Errorf("tool listing failed: %w", err)
			}

			fmt.Printf("Available tools (%d):\n", len(tools))
			for _, tool := range tools {
				fmt.Printf("  - %s", tool.Name)
				if tool.Description != "" {
					fmt.Printf(": %s", tool.Description)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "http://localhost:8091/mcp", "MCP endpoint URL (must end with /mcp)")
	return cmd
}
