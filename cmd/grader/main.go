package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"hdlgrade/internal/common/db"
	"hdlgrade/internal/common/storage"
	"hdlgrade/internal/grader/archive"
	"hdlgrade/internal/grader/engine"
	"hdlgrade/internal/grader/executor"
	"hdlgrade/internal/grader/pipeline"
	"hdlgrade/internal/grader/reportstore"
	"hdlgrade/internal/grader/resultparse"
	"hdlgrade/internal/grader/sandbox"
	"hdlgrade/internal/grader/score"
	"hdlgrade/internal/grader/testbench"
	"hdlgrade/internal/grader/toolchain"
	"hdlgrade/internal/lms/canvas"
	"hdlgrade/pkg/utils/logger"
)

const defaultConfigPath = "configs/grader.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	assignments := flag.String("assignments", "", "Comma-separated assignment ids, overrides config")
	force := flag.Bool("force", false, "Regrade submissions that already carry a score")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}
	if *force {
		appCfg.Grading.Force = true
	}
	ids := appCfg.Grading.Assignments
	if *assignments != "" {
		ids = nil
		for _, id := range strings.Split(*assignments, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no assignments to grade (config grading.assignments or -assignments)")
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lmsClient, err := canvas.New(appCfg.Canvas)
	if err != nil {
		logger.Error(ctx, "init canvas client failed", zap.Error(err))
		os.Exit(1)
	}

	resolver, err := testbench.NewResolver(appCfg.Testbench.Root, appCfg.Testbench.SourceExt)
	if err != nil {
		logger.Error(ctx, "init testbench resolver failed", zap.Error(err))
		os.Exit(1)
	}
	sandboxes, err := sandbox.NewManager(appCfg.Sandbox.WorkRoot, appCfg.Testbench.SourceExt)
	if err != nil {
		logger.Error(ctx, "init sandbox manager failed", zap.Error(err))
		os.Exit(1)
	}

	chain, err := toolchain.New(appCfg.Toolchain, engine.NewEngine(appCfg.Worker.MaxCaptureBytes))
	if err != nil {
		logger.Error(ctx, "init toolchain failed", zap.Error(err))
		os.Exit(1)
	}
	runner, err := executor.New(chain, chain, appCfg.Worker.CompileTimeout, appCfg.Worker.RunTimeout)
	if err != nil {
		logger.Error(ctx, "init executor failed", zap.Error(err))
		os.Exit(1)
	}

	var store reportstore.Store = reportstore.NewMemoryStore()
	if appCfg.Database.DSN != "" {
		pool, err := db.OpenMySQL(appCfg.Database)
		if err != nil {
			logger.Error(ctx, "init database failed", zap.Error(err))
			os.Exit(1)
		}
		defer func() {
			_ = pool.Close()
		}()
		mysqlStore, err := reportstore.NewMySQLStore(pool)
		if err != nil {
			logger.Error(ctx, "init report store failed", zap.Error(err))
			os.Exit(1)
		}
		if err := mysqlStore.EnsureSchema(ctx); err != nil {
			logger.Error(ctx, "ensure report schema failed", zap.Error(err))
			os.Exit(1)
		}
		store = mysqlStore
	}

	var objStorage storage.ObjectStorage
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err = storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(ctx, "init minio failed", zap.Error(err))
			os.Exit(1)
		}
	}
	keeper, err := archive.NewKeeper(appCfg.Retention, objStorage)
	if err != nil {
		logger.Error(ctx, "init retention failed", zap.Error(err))
		os.Exit(1)
	}

	p, err := pipeline.New(lmsClient, lmsClient, resolver, sandboxes, runner,
		resultparse.New(appCfg.Grading.Marker), score.New(appCfg.Grading.MaxDiagnosticBytes),
		store, keeper, appCfg.pipelineConfig())
	if err != nil {
		logger.Error(ctx, "init pipeline failed", zap.Error(err))
		os.Exit(1)
	}

	summary, runErr := p.Run(ctx, ids)
	printSummary(summary)
	if runErr != nil {
		logger.Error(ctx, "grading run ended early", zap.Error(runErr))
		os.Exit(1)
	}
	for _, a := range summary.Assignments {
		if a.PostFailures > 0 {
			os.Exit(1)
		}
	}
}

func printSummary(summary pipeline.RunSummary) {
	fmt.Printf("run %s\n", summary.RunID)
	for _, a := range summary.Assignments {
		if a.SkipReason != "" {
			fmt.Printf("  %s: skipped (%s)\n", a.AssignmentID, a.SkipReason)
			continue
		}
		fmt.Printf("  %s %q: graded %d, skipped %d, post failures %d\n",
			a.AssignmentID, a.Name, a.Graded, a.Skipped, a.PostFailures)
		for _, report := range a.Reports {
			fmt.Printf("    student %s: %.1f (%d/%d)\n",
				report.StudentID, report.PostedScore, report.Passed, report.Total)
		}
	}
}
