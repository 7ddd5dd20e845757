// Command apiserver runs the HTTP API: synchronous extraction, async job
// submission, job status/result lookup, and SSE event streams.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prodsnap/prodsnap/agentloop"
	"github.com/prodsnap/prodsnap/config"
	"github.com/prodsnap/prodsnap/eventlog"
	"github.com/prodsnap/prodsnap/httpapi"
	"github.com/prodsnap/prodsnap/jobqueue"
	"github.com/prodsnap/prodsnap/modelclient"
	"github.com/prodsnap/prodsnap/scraper"
	"github.com/prodsnap/prodsnap/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("apiserver exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	rdb, err := cfg.NewRedisClient()
	if err != nil {
		return err
	}
	defer rdb.Close()

	adapter, err := modelclient.NewGollmAdapter(cfg.LLMProvider, cfg.LLMAPIKey,
		modelclient.WithModel(cfg.LLMModel))
	if err != nil {
		return err
	}
	client := modelclient.NewClient(modelclient.WithProvider(cfg.LLMProvider, adapter))
	defer client.Close()

	registry := agentloop.NewToolRegistry()
	if err := tools.RegisterFetchTool(registry, tools.NewFetcher(logger)); err != nil {
		return err
	}
	if keys := cfg.TavilyKeys(); len(keys) > 0 {
		tavily, err := tools.NewTavilyClient(keys, logger)
		if err != nil {
			return err
		}
		if err := tools.RegisterSearchTool(registry, tools.NewSearcher(tavily, logger)); err != nil {
			return err
		}
	} else {
		logger.Warn("no Tavily API keys configured, search_web disabled")
	}

	events := eventlog.NewRedisStore(rdb)
	queue := jobqueue.NewRedisQueue(rdb)
	results := jobqueue.NewRedisResultStore(rdb)

	task := scraper.NewTask(client, registry, results, logger)
	task.Model = cfg.LLMModel
	task.MaxIterations = cfg.MaxIterations
	task.ToolWorkers = cfg.ToolWorkers

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	server := httpapi.NewServer(task, events, queue, results, logger)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
