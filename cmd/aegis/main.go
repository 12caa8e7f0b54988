package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"aegis/internal/config"
	"aegis/internal/debate"
	"aegis/internal/degrade"
	"aegis/internal/lease"
	"aegis/internal/pharma"
	"aegis/internal/pipeline"
	"aegis/internal/progress"
	"aegis/internal/retrieval"
	"aegis/internal/safeio"
	"aegis/internal/session"
	"aegis/internal/syncd"
)

func main() {
	patient := flag.String("patient", "", "patient identifier (generated when empty)")
	audio := flag.String("audio", "", "consultation audio (or transcript .txt)")
	cough := flag.String("cough", "", "cough recording (defaults to consultation audio)")
	cxr := flag.String("cxr", "", "chest X-ray image")
	derm := flag.String("derm", "", "skin lesion photograph")
	slide := flag.String("path", "", "histopathology slide image")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog := degrade.DefaultCatalog()
	if cfg.CatalogPath != "" {
		c, err := degrade.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("load remediation catalog", zap.Error(err))
		}
		catalog = c
	}

	inventory, err := pharma.LoadInventory(cfg.InventoryPath)
	if err != nil {
		logger.Fatal("load drug inventory", zap.Error(err))
	}

	library, err := retrieval.LoadLibrary(cfg.CaseLibraryPath)
	if err != nil {
		logger.Fatal("load case library", zap.Error(err))
	}

	var debateGen debate.Generator
	var pharmaGen pharma.Generator
	if cfg.EnableGemini {
		backend, err := debate.NewGeminiBackend(ctx, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini backend unavailable, using deterministic fallbacks", zap.Error(err))
		} else {
			debateGen = backend
			pharmaGen = backend
		}
	}

	broadcaster := progress.NewBroadcaster(logger)
	if cfg.WatchAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws/progress", broadcaster.HandleWatch)
		go func() {
			logger.Info("progress endpoint listening", zap.String("addr", cfg.WatchAddr))
			if err := http.ListenAndServe(cfg.WatchAddr, mux); err != nil {
				logger.Warn("progress endpoint stopped", zap.Error(err))
			}
		}()
	}

	store, err := syncd.NewStore(cfg.SyncDir)
	if err != nil {
		logger.Fatal("open override store", zap.Error(err))
	}
	engine := syncd.NewEngine(store, nil, cfg.SyncInterval, logger)
	engine.Start()
	defer engine.Stop()

	inputFS, err := safeio.NewSafeFS(".")
	if err != nil {
		logger.Fatal("open input root", zap.Error(err))
	}

	s := session.New(*patient)
	s.Inputs = session.Inputs{
		AudioPath:     resolveInput(inputFS, *audio, "audio", logger),
		CoughPath:     resolveInput(inputFS, *cough, "cough", logger),
		CXRPath:       resolveInput(inputFS, *cxr, "cxr", logger),
		DermPath:      resolveInput(inputFS, *derm, "derm", logger),
		PathPath:      resolveInput(inputFS, *slide, "path", logger),
		InventoryPath: cfg.InventoryPath,
	}

	orch := pipeline.New(pipeline.Config{
		Lease:     lease.NewManager(logger),
		Catalog:   catalog,
		Retriever: retrieval.NewRetriever(library, nil, logger),
		Inventory: inventory,
		PharmaGen: pharmaGen,
		DebateGen: debateGen,
		Log:       logger,
		OnPhase: func(phase string, completed, total int) {
			logger.Info("phase complete",
				zap.String("session", s.SessionID),
				zap.String("phase", phase),
				zap.Int("completed", completed),
				zap.Int("total", total))
			broadcaster.PhaseFunc(s.SessionID)(phase, completed, total)
		},
	})

	logger.Info("starting analysis",
		zap.String("session", s.SessionID),
		zap.String("patient", s.PatientID))
	orch.Run(ctx, s)

	if err := exportSession(cfg.OutputDir, s); err != nil {
		logger.Fatal("export session", zap.Error(err))
	}
	logger.Info("analysis complete",
		zap.String("session", s.SessionID),
		zap.Int("phases", len(s.PhasesCompleted)),
		zap.Int("errors", len(s.Errors)))

	if s.Debate != nil && s.Debate.PatientLetter != "" {
		fmt.Println(s.Debate.PatientLetter)
	}

	if res := engine.AttemptSync(); res.Status == syncd.SyncError {
		logger.Warn("final sync attempt failed", zap.String("error", res.Error))
	}
}

func resolveInput(fsys *safeio.SafeFS, path, kind string, logger *zap.Logger) string {
	if path == "" {
		return ""
	}
	resolved, err := fsys.ResolvePath(path)
	if err != nil {
		logger.Warn("input rejected, treating modality as missing",
			zap.String("kind", kind),
			zap.String("path", path),
			zap.Error(err))
		return ""
	}
	info, err := fsys.SafeStat(path)
	if err != nil || info.IsDir() {
		logger.Warn("input is not a readable file, treating modality as missing",
			zap.String("kind", kind),
			zap.String("path", path))
		return ""
	}
	return resolved
}

func exportSession(outDir string, s *session.Session) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	outFS, err := safeio.NewSafeFS(outDir)
	if err != nil {
		return err
	}
	data, err := s.Export()
	if err != nil {
		return err
	}
	name := fmt.Sprintf("session_%s.json", s.SessionID)
	if err := outFS.WriteFileAtomic(name, data, 0o644); err != nil {
		return err
	}
	fmt.Println("report:", filepath.Join(outDir, name))
	return nil
}
