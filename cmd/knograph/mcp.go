package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knograph/knograph/pkg/knograph"
	"github.com/knograph/knograph/pkg/logger"
	"github.com/knograph/knograph/pkg/mcpserver"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run knograph as an MCP (Model Context Protocol) server",
		Long: `Start an MCP server that exposes the learner knowledge graph over stdio.

AI tutors invoke knograph tools directly:

  • analyze_conversation   - Extract and record concepts from a conversation
  • record_learning        - Record explicit learning observations
  • get_knowledge_gaps     - Find missing prerequisites for target concepts
  • get_recommendations    - Suggest what to learn next
  • get_learning_progress  - Full progress overview for a learner

The server communicates via JSON-RPC 2.0 over stdin/stdout. Storage is
selected by config: Neo4j when a URI is set, a local SQLite file otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := knograph.LoadConfig(configPath)
			if err != nil {
				return err
			}
			svc, err := knograph.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create service: %w", err)
			}

			log, err := logger.New(cfg.LogMode)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}

			server := mcpserver.NewServer(svc, version, log)
			defer server.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		},
	}
}
