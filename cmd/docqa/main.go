package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
	"github.com/xxxsen/docqa/internal/engine"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/runner"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
)

const shutdownGrace = 10 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "document question answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			return runServer(cfg, conn)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			logutil.GetLogger(context.Background()).Info("migrations applied")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd, migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func bootstrap(configPath string) (*config.Config, *sqlx.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func runServer(cfg *config.Config, conn *sqlx.DB) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("upload_dir", cfg.Upload.Dir),
		zap.String("work_dir", cfg.WorkDir),
		zap.Int("analysis_workers", cfg.AnalysisWorkers),
	)
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	docRepo := repo.NewDocumentRepo(conn)
	convRepo := repo.NewConversationRepo(conn)

	uploads, err := filestore.NewLocalStore(cfg.Upload.Dir)
	if err != nil {
		return fmt.Errorf("init upload store: %w", err)
	}
	ingestOpts := []service.IngestOption{
		service.WithDocumentCache(cfg.DocumentCache.Size, time.Duration(cfg.DocumentCache.TTLSeconds)*time.Second),
	}
	if cfg.Archive != nil {
		archive, err := filestore.New(*cfg.Archive)
		if err != nil {
			return fmt.Errorf("init archive store: %w", err)
		}
		ingestOpts = append(ingestOpts, service.WithArchive(archive))
	}

	areas := engine.NewWorkAreas(cfg.WorkDir)
	exec := runner.NewExecRunner()
	var ingestService *service.IngestService
	onDone := func(docID string, state model.DocumentState, detail string) {
		ingestService.OnAnalysisDone(docID, state, detail)
	}
	analysis, err := engine.NewAnalysisAdapter(docRepo, exec, areas, engine.SpecFromConfig(cfg.AnalysisEngine),
		engine.WithWorkers(cfg.AnalysisWorkers),
		engine.WithCompletion(onDone),
	)
	if err != nil {
		return fmt.Errorf("init analysis engine: %w", err)
	}
	defer analysis.Release()
	querier, err := engine.NewQueryAdapter(exec, engine.SpecFromConfig(cfg.QueryEngine), *cfg.FailOnStderr)
	if err != nil {
		return fmt.Errorf("init query engine: %w", err)
	}
	ingestService = service.NewIngestService(docRepo, analysis, ingestOpts...)
	queryService := service.NewQueryService(ingestService, convRepo, areas, querier)

	scheduler := schedule.NewCronScheduler()
	if !cfg.StaleSweep.Disabled {
		sweep := job.NewStaleAnalysisJob(docRepo, time.Duration(cfg.StaleSweep.MaxAgeSeconds)*time.Second, onDone,
			job.WithInFlight(analysis.InFlight))
		if err := scheduler.AddJob(sweep, cfg.StaleSweep.Spec); err != nil {
			return fmt.Errorf("schedule stale sweep: %w", err)
		}
		if err := scheduler.RunNow(sweep.Name()); err != nil {
			return err
		}
	}

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(ingestService, queryService, uploads, cfg.Upload.MaxSize, cfg.Upload.AllowedTypes),
		RateLimit: time.Duration(cfg.RateLimitMs) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	webEngine, err := webapi.NewEngine(
		"/api",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	scheduler.Start(sigCtx)

	go func() {
		logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
		if err := webEngine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-sigCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	scheduler.Stop()
	waitAnalysis(analysis, shutdownGrace)
	return nil
}

func waitAnalysis(analysis *engine.AnalysisAdapter, grace time.Duration) {
	done := make(chan struct{})
	go func() {
		analysis.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		logutil.GetLogger(context.Background()).Warn("analysis jobs still running at shutdown", zap.Int("running", analysis.Running()))
	}
}
