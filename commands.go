package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"packchicken-service/config"
	"packchicken-service/core"
	"packchicken-service/server"
	"packchicken-service/storefront"
	"packchicken-service/workers/fulfillment"
	"packchicken-service/workers/fulfillment/repositories"
	"packchicken-service/workers/inbox"
	"packchicken-service/workers/tracking"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func setup() (*env, error) {
	cfg := config.LoadConfig()

	logger, err := core.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	for _, line := range cfg.Summary() {
		logger.Info(line)
	}

	db, err := core.OpenDatabase(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repositories.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = e.logger.Sync()
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the dashboard, the ingress endpoint and the scheduled workers",
		Action: serve,
	}
}

func serve(_ *cli.Context) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock := core.NewRunLocker(e.cfg.Redis, e.logger)
	deps := server.Deps{Intake: fulfillment.NewIntake(e.cfg, e.logger, e.db)}

	var workers []core.Worker
	if fw, err := fulfillment.NewWorker(e.cfg, e.logger, e.db, lock); err != nil {
		e.logger.Warn("Booking disabled", zap.Error(err))
		deps.RunnerErr = err
	} else {
		workers = append(workers, fw)
		deps.Runner = fw.Pipeline()
	}
	if err := e.cfg.RequireEmail(); err != nil {
		e.logger.Info("Inbox worker disabled", zap.Error(err))
	} else {
		workers = append(workers, inbox.NewWorker(e.cfg, e.logger, e.db, deps.Intake))
	}
	workers = append(workers, tracking.NewWorker(e.cfg, e.logger, e.db))

	c, err := core.NewOrchestrator(e.logger, workers).Start(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              e.cfg.HTTPAddr,
		Handler:           server.New(e.cfg, e.logger, e.db, deps).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	e.logger.Info("PackChicken is listening", zap.String("addr", e.cfg.HTTPAddr))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		e.logger.Error("Graceful shutdown failed", zap.Error(err))
	}
	<-c.Stop().Done()
	return nil
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "book every pending job once and merge the labels",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "return", Usage: "book return shipments (customer sends to us)"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			processor, err := fulfillment.NewProcessor(e.cfg, e.logger)
			if err != nil {
				return err
			}
			pipeline := fulfillment.NewPipeline(e.cfg, e.logger, e.db, processor,
				fulfillment.NewStorefront(e.cfg, e.logger), core.NewRunLocker(e.cfg.Redis, e.logger))

			report, runErr := pipeline.Run(c.Context, fulfillment.RunOptions{Return: c.Bool("return")})
			if report != nil {
				out, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			}
			return runErr
		},
	}
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:      "enqueue-csv",
		Usage:     "enqueue orders from CSV or XLSX exports (default: every file in ORDERS_DIR)",
		ArgsUsage: "[paths...]",
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			paths := c.Args().Slice()
			if len(paths) == 0 {
				if paths, err = orderFiles(e.cfg.OrdersDir); err != nil {
					return err
				}
			}
			if len(paths) == 0 {
				e.logger.Info("No order files found", zap.String("dir", e.cfg.OrdersDir))
				return nil
			}

			intake := fulfillment.NewIntake(e.cfg, e.logger, e.db)
			total := 0
			for _, path := range paths {
				added, err := intake.SubmitFile(c.Context, path)
				if err != nil {
					return err
				}
				e.logger.Info("Order file enqueued", zap.String("path", path), zap.Strings("orders", added))
				total += len(added)
			}
			fmt.Printf("Enqueued %d order(s) from %d file(s)\n", total, len(paths))
			return nil
		},
	}
}

func orderFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".xlsx":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func ingestEmailCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest-email",
		Usage: "read unseen order mails once and enqueue them",
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			intake := fulfillment.NewIntake(e.cfg, e.logger, e.db)
			n, err := inbox.NewWorker(e.cfg, e.logger, e.db, intake).RunOnce(c.Context)
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued %d order mail(s)\n", n)
			return nil
		},
	}
}

func importStorefrontCommand() *cli.Command {
	return &cli.Command{
		Name:  "import-storefront",
		Usage: "enqueue open, unfulfilled storefront orders",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum number of orders to fetch"},
			&cli.StringFlag{Name: "since", Usage: "only orders updated after this ISO 8601 time"},
		},
		Action: func(c *cli.Context) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			client, err := storefront.NewClient(e.cfg.Shopify, e.logger)
			if err != nil {
				return err
			}
			added, err := fulfillment.NewIntake(e.cfg, e.logger, e.db).
				ImportStorefront(c.Context, client, c.Int("limit"), c.String("since"))
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued %d storefront order(s)\n", len(added))
			return nil
		},
	}
}
