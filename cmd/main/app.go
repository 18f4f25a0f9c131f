package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/CTAG07/Drosera/pkg/corpus"
	"github.com/CTAG07/Drosera/pkg/markov"
	"github.com/CTAG07/Drosera/pkg/pipeline"
	"github.com/CTAG07/Drosera/pkg/rewrite"
	"github.com/CTAG07/Drosera/pkg/scrape"
	"github.com/CTAG07/Drosera/pkg/substitute"
)

// App holds every long-lived dependency shared by the commands and the API.
type App struct {
	config      Config
	logger      *slog.Logger
	db          *sql.DB
	store       *corpus.Store
	generator   *markov.Generator
	pipeline    *pipeline.Pipeline
	fetcher     *scrape.Fetcher
	substituter *substitute.Substituter
	rewriter    rewrite.Rewriter

	cancelWatch context.CancelFunc
	watchWG     sync.WaitGroup
}

// newApp opens the database and builds the generation stack from config.
func newApp(ctx context.Context, config Config, logger *slog.Logger) (*App, error) {
	dbPath := config.Server.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.Server.DataDir, "drosera.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = corpus.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set up corpus schema: %w", err)
	}
	if err = setupKeySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set up key schema: %w", err)
	}

	store, err := corpus.NewStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare corpus store: %w", err)
	}
	store.SetLogger(logger)

	app := &App{
		config:    config,
		logger:    logger,
		db:        db,
		store:     store,
		generator: markov.NewGenerator(nil),
		fetcher: scrape.NewFetcher(
			scrape.WithMaxChars(config.Scrape.MaxChars),
			scrape.WithConcurrency(config.Scrape.Concurrency),
			scrape.WithTimeout(time.Duration(config.Scrape.TimeoutSec)*time.Second),
			scrape.WithUserAgent(config.Scrape.UserAgent),
		),
	}
	app.generator.SetLogger(logger)
	app.fetcher.SetLogger(logger)

	if err = app.setupPostProcessing(ctx); err != nil {
		app.Close()
		return nil, err
	}

	builder := markov.NewChartBuilder(nil)
	builder.SetLogger(logger)
	opts := []pipeline.Option{
		pipeline.WithChartBuilder(builder),
		pipeline.WithCacheSize(app.config.Generation.ChartCache),
	}
	if app.substituter != nil {
		opts = append(opts, pipeline.WithSubstituter(app.substituter))
	}
	if app.rewriter != nil {
		opts = append(opts, pipeline.WithRewriter(app.rewriter))
	}
	app.pipeline = pipeline.New(app.generator, opts...)
	app.pipeline.SetLogger(logger)

	return app, nil
}

func (a *App) setupPostProcessing(ctx context.Context) error {
	sc := a.config.Substitute
	if sc.ThesaurusPath != "" {
		th, err := substitute.LoadThesaurusFile(sc.ThesaurusPath)
		if err != nil {
			return fmt.Errorf("failed to load thesaurus: %w", err)
		}
		a.substituter = substitute.NewSubstituter(th, substitute.WithRate(sc.Rate))
		a.substituter.SetLogger(a.logger)
		a.logger.Info("Thesaurus loaded", slog.String("path", sc.ThesaurusPath), slog.Int("words", th.Len()))

		if sc.Watch {
			watchCtx, cancel := context.WithCancel(ctx)
			a.cancelWatch = cancel
			a.watchWG.Add(1)
			go func() {
				defer a.watchWG.Done()
				if err := a.substituter.Watch(watchCtx, sc.ThesaurusPath); err != nil {
					a.logger.Error("Thesaurus watcher stopped", slog.String("error", err.Error()))
				}
			}()
		}
	}

	rc := a.config.Rewrite
	if rc.Enabled {
		key := os.Getenv(rc.APIKeyEnv)
		if key == "" {
			return fmt.Errorf("rewrite is enabled but %s is not set", rc.APIKeyEnv)
		}
		g, err := rewrite.NewGemini(ctx, rewrite.GeminiConfig{APIKey: key, Model: rc.Model})
		if err != nil {
			return err
		}
		g.SetLogger(a.logger)
		a.rewriter = g
	}
	return nil
}

// request converts the generation config into a pipeline request.
func (a *App) request() (pipeline.Request, error) {
	gc := a.config.Generation
	casing, err := markov.ParseCasingPolicy(gc.Casing)
	if err != nil {
		return pipeline.Request{}, err
	}
	return pipeline.Request{
		StateSize:     gc.StateSize,
		MinWords:      gc.MinWords,
		MaxExtraWords: gc.MaxExtraWords,
		Casing:        casing,
		Temperature:   gc.Temperature,
		TopK:          gc.TopK,
		Substitute:    a.substituter != nil,
		Rewrite:       a.rewriter != nil,
	}, nil
}

// recordRun stores a finished run in the history. Failures are logged only.
func (a *App) recordRun(ctx context.Context, corpusName string, req pipeline.Request, out *pipeline.Output) {
	_, err := a.store.RecordRun(ctx, corpus.Run{
		Id:          out.RunID,
		CorpusName:  corpusName,
		StateSize:   req.StateSize,
		MinWords:    req.MinWords,
		WordCount:   len(out.Result.Words),
		ExtraWords:  out.Result.ExtraWords,
		Fallbacks:   out.Result.Fallbacks,
		Substituted: out.Substituted != "",
		Rewritten:   out.Rewritten,
		Output:      out.Final,
	})
	if err != nil {
		a.logger.Warn("Failed to record generation run", slog.String("run_id", out.RunID), slog.String("error", err.Error()))
	}
}

// Close stops the thesaurus watcher and releases the database.
func (a *App) Close() {
	if a.cancelWatch != nil {
		a.cancelWatch()
		a.watchWG.Wait()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database", slog.String("error", err.Error()))
		}
	}
}
