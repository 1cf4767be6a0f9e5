package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/review"
	"github.com/sells-group/outreach-cli/internal/server"
	"github.com/sells-group/outreach-cli/internal/tabular"
)

var (
	servePort    int
	serveOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the review API server",
	Long: `Serves the JSON review API: upload an organization file, run generation,
edit individual emails, and download the batch as CSV or XLSX.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, err := buildServer(ctx, cfg, serveOffline)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "use the stub generator (no API keys needed)")
	rootCmd.AddCommand(serveCmd)
}

// buildServer wires the session store, its janitor, and the pipeline into a
// review server. The janitor stops with ctx.
func buildServer(ctx context.Context, c *config.Config, offline bool) (*server.Server, error) {
	if !offline {
		if err := c.Validate("serve"); err != nil {
			return nil, err
		}
	}
	env, err := initPipeline(ctx, c, offline)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(c.Server.SessionTTLHours) * time.Hour
	store := review.NewStore(ttl)
	if ttl > 0 {
		go store.Janitor(ctx, min(ttl/4, 15*time.Minute))
	}
	zap.L().Info("review sessions enabled", zap.Duration("ttl", ttl))

	return server.New(store, env, server.Options{
		MaxUploadBytes:   int64(c.Server.MaxUploadMB) << 20,
		MaxOrganizations: c.Batch.MaxOrganizations,
		AllowedOrigins:   c.Server.AllowedOrigins,
		Read:             tabular.ReadOptions{Charset: c.Input.Charset, Sheet: c.Input.Sheet},
	}), nil
}
