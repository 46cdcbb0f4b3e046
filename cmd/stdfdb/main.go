package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"github.com/zxspring21/AISEMITEST/internal/adapters/db/gormstore"
	httpadapter "github.com/zxspring21/AISEMITEST/internal/adapters/http"
	"github.com/zxspring21/AISEMITEST/internal/config"
	"github.com/zxspring21/AISEMITEST/internal/ingest"
	"github.com/zxspring21/AISEMITEST/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	if err := rootCommand().Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "stdfdb:", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "stdfdb",
		Usage: "Load STDF test data into a relational store and report on it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "stdfdb.yaml", Usage: "YAML config file", Sources: cli.EnvVars("STDF_CONFIG")},
			&cli.StringFlag{Name: "db", Usage: "database URL (sqlite://<path> or postgres://...)"},
			&cli.StringFlag{Name: "server", Usage: "run against a stdfdb server instead of the database", Sources: cli.EnvVars("STDF_SERVER")},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Commands: []*cli.Command{
			loadCommand(),
			lotsCommand(),
			reportCommand(),
			importsCommand(),
			migrateCommand(),
			serveCommand(),
		},
	}
}

// setup resolves the config (file, env, then flags) and builds the logger.
func setup(c *cli.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if v := c.String("db"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withBackend runs fn against the configured backend and releases it after.
func withBackend(ctx context.Context, c *cli.Command, fn func(backend) error) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	b, release, err := selectBackend(ctx, cfg, c.String("server"), logger)
	if err != nil {
		return err
	}
	defer release()
	return fn(b)
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}
}

func lotIDArg(c *cli.Command) (uint, error) {
	raw := c.Args().First()
	if raw == "" {
		return 0, errors.New("lot id is required")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid lot id %q", raw)
	}
	return uint(id), nil
}

func loadCommand() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Load STDF files (local paths, .gz or s3:// URLs), one transaction per file",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "company", Usage: "company name"},
			&cli.StringFlag{Name: "product", Usage: "product used when the file has no part type"},
			&cli.StringFlag{Name: "stage", Usage: "stage used when the file has no mode code"},
			&cli.BoolFlag{Name: "keep-going", Usage: "continue with the next file after a failure"},
			jsonFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			files := c.Args().Slice()
			if len(files) == 0 {
				return errors.New("at least one file is required")
			}
			overrides := ingest.Overrides{
				Company: c.String("company"),
				Product: c.String("product"),
				Stage:   c.String("stage"),
			}
			return withBackend(ctx, c, func(b backend) error {
				failed := 0
				for _, file := range files {
					res, err := b.Load(ctx, file, overrides)
					if err != nil {
						failed++
						if !c.Bool("keep-going") {
							return errors.Wrapf(err, "load %s", file)
						}
						fmt.Fprintf(os.Stderr, "load %s: %v\n", file, err)
						continue
					}
					if c.Bool("json") {
						if err := printJSON(res); err != nil {
							return err
						}
						continue
					}
					printLoadResult(res)
				}
				if failed > 0 {
					return errors.Errorf("%d of %d files failed", failed, len(files))
				}
				return nil
			})
		},
	}
}

func lotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "lots",
		Usage: "Lot commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List lots, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q", Usage: "filter by lot identifier"},
					&cli.IntFlag{Name: "limit", Value: 100},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withBackend(ctx, c, func(b backend) error {
						out, err := b.ListLots(ctx, c.String("q"), c.Int("limit"))
						if err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printLots(out)
						return nil
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Show one lot with its counts",
				ArgsUsage: "LOT_ID",
				Flags:     []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					lotID, err := lotIDArg(c)
					if err != nil {
						return err
					}
					return withBackend(ctx, c, func(b backend) error {
						out, err := b.GetLot(ctx, lotID)
						if err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printLotSummary(out)
						return nil
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a lot with its wafers, dies, bins and test items",
				ArgsUsage: "LOT_ID",
				Action: func(ctx context.Context, c *cli.Command) error {
					lotID, err := lotIDArg(c)
					if err != nil {
						return err
					}
					return withBackend(ctx, c, func(b backend) error {
						if err := b.DeleteLot(ctx, lotID); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "deleted lot %d\n", lotID)
						return nil
					})
				},
			},
		},
	}
}

func reportCommand() *cli.Command {
	perLot := func(name, usage string, extra []cli.Flag, run func(ctx context.Context, c *cli.Command, b backend, lotID uint) error) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "LOT_ID",
			Flags:     append([]cli.Flag{jsonFlag()}, extra...),
			Action: func(ctx context.Context, c *cli.Command) error {
				lotID, err := lotIDArg(c)
				if err != nil {
					return err
				}
				return withBackend(ctx, c, func(b backend) error {
					return run(ctx, c, b, lotID)
				})
			},
		}
	}

	return &cli.Command{
		Name:  "report",
		Usage: "Per-lot reports",
		Commands: []*cli.Command{
			perLot("bins", "Hard and soft bin counts", nil, func(ctx context.Context, c *cli.Command, b backend, lotID uint) error {
				out, err := b.BinSummary(ctx, lotID)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printBins(out)
				return nil
			}),
			perLot("pareto", "Most failing tests", []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}}, func(ctx context.Context, c *cli.Command, b backend, lotID uint) error {
				out, err := b.FailPareto(ctx, lotID, c.Int("limit"))
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printPareto(out)
				return nil
			}),
			perLot("suites", "Test items grouped by suite", nil, func(ctx context.Context, c *cli.Command, b backend, lotID uint) error {
				out, err := b.SuiteItems(ctx, lotID)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printSuites(out)
				return nil
			}),
			perLot("wafers", "Per-wafer yield", nil, func(ctx context.Context, c *cli.Command, b backend, lotID uint) error {
				out, err := b.WaferYields(ctx, lotID)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printWafers(out)
				return nil
			}),
			perLot("equipment", "Site equipment from SDR records", nil, func(ctx context.Context, c *cli.Command, b backend, lotID uint) error {
				out, err := b.SiteEquipment(ctx, lotID)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printEquipment(out)
				return nil
			}),
		},
	}
}

func importsCommand() *cli.Command {
	return &cli.Command{
		Name:  "imports",
		Usage: "List import runs and the store overview",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 50},
			jsonFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withBackend(ctx, c, func(b backend) error {
				overview, err := b.Overview(ctx)
				if err != nil {
					return err
				}
				runs, err := b.ImportRuns(ctx, c.Int("limit"))
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(map[string]any{"overview": overview, "imports": runs})
				}
				printOverview(overview)
				fmt.Fprintln(stdout)
				printImports(runs)
				return nil
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := gormstore.Open(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			}()
			if err := gormstore.RunMigrations(ctx, db); err != nil {
				return err
			}
			logger.Info("schema up to date", zap.String("dialect", db.Dialector.Name()))
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address (default from config)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := setup(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if v := c.String("addr"); v != "" {
				cfg.HTTP.Addr = v
			}

			svc, release, err := openService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer release()
			return runServer(ctx, cfg.HTTP.Addr, httpadapter.NewRouter(svc, logger), logger)
		},
	}
}

func runServer(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
