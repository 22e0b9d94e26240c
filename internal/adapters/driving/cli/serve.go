package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/telegram"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/watcher"
	"github.com/custodia-labs/ragbot/internal/logger"
)

var (
	serveAddr     string
	serveTelegram bool
	serveWatchDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API (default address from http.addr, ":8000").

Routes (under /api/v1):
  POST   /query              {"query": "...", "session_id": "..."}
  POST   /documents          multipart "file" field or raw PDF body
  GET    /documents
  GET    /documents/{id}
  DELETE /documents/{id}
  GET    /stats
  GET    /conversations/{session}
  GET    /health
  GET    /diagnose

The Telegram bot and a folder watcher can run in the same process.

Examples:
  ragbot serve
  ragbot serve --addr 127.0.0.1:9000 --telegram --watch ~/papers`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
	serveCmd.Flags().BoolVar(&serveTelegram, "telegram", false, "also run the Telegram bot")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "also ingest PDFs dropped into this directory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rag, err := ragService()
	if err != nil {
		return err
	}
	settings := appSettings()

	addr := serveAddr
	if addr == "" {
		addr = settings.HTTP.Addr
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		RAG:           rag,
		Ingest:        services.Ingest,
		Documents:     services.Documents,
		Conversations: services.Conversations,
		Status:        services.Status,
	}, settings.Ingest.MaxFileBytes)
	if err != nil {
		return err
	}

	var bot *telegram.Bot
	if serveTelegram {
		if bot, err = newTelegramBot(); err != nil {
			return err
		}
	}
	var w *watcher.Watcher
	if serveWatchDir != "" {
		if w, err = newWatcher(serveWatchDir); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(commandContext(cmd))
	g.Go(func() error {
		cmd.Printf("HTTP API listening on %s\n", addr)
		return server.Run(ctx, addr)
	})
	if bot != nil {
		g.Go(func() error {
			bot.Run(ctx)
			return nil
		})
	}
	if w != nil {
		g.Go(func() error {
			return runWatcher(ctx, w)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newTelegramBot() (*telegram.Bot, error) {
	rag, err := ragService()
	if err != nil {
		return nil, err
	}
	settings := appSettings()
	return telegram.New(settings.Telegram.Token, &telegram.Ports{
		RAG:           rag,
		Conversations: services.Conversations,
		Documents:     services.Documents,
		Ingest:        services.Ingest,
	}, telegram.Options{
		AllowUploads: settings.Telegram.AllowUploads,
		MaxFileBytes: settings.Ingest.MaxFileBytes,
	})
}

func newWatcher(dir string) (*watcher.Watcher, error) {
	ingest, err := ingestService()
	if err != nil {
		return nil, err
	}
	docs, err := documentService()
	if err != nil {
		return nil, err
	}
	return watcher.New(dir, ingest, docs, watchDebounce)
}

// runWatcher ingests what is already in the directory, then follows changes.
func runWatcher(ctx context.Context, w *watcher.Watcher) error {
	if _, err := w.Scan(ctx); err != nil {
		logger.Warn("watch: initial scan: %v", err)
	}
	return w.Run(ctx)
}
