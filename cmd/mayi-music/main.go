package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/mayi-music/core/algo/ncm"
	_ "github.com/mayi-music/core/algo/qmc"
	_ "github.com/mayi-music/core/algo/raw"
	_ "github.com/mayi-music/core/algo/stub"
	"github.com/mayi-music/core/internal/catalog"
	"github.com/mayi-music/core/internal/config"
	"github.com/mayi-music/core/internal/httpapi"
	"github.com/mayi-music/core/internal/ingest"
	"github.com/mayi-music/core/internal/unlock"
	"github.com/mayi-music/core/internal/watch"
)

var AppVersion = "custom"

func main() {
	module, ok := debug.ReadBuildInfo()
	if ok && module.Main.Version != "(devel)" {
		AppVersion = module.Main.Version
	}

	app := &cli.App{
		Name:      "mayi-music",
		HelpName:  "mayi-music",
		Usage:     "a personal music library: decrypt protected tracks and keep a deduplicated catalog",
		Version:   fmt.Sprintf("%s (%s,%s/%s)", AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH),
		UsageText: "mayi-music [global flags] <command>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "service root dir (holds Library/, New/, Duplicate/, Trash/, Unlocked/)", Value: "."},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "verbose logging", Value: false},
		},
		Commands: []*cli.Command{
			serveCommand(),
			addCommand(),
			unlockCommand(),
			scanCommand(),
			statsCommand(),
			backupCommand(),
		},
		HideHelpCommand: true,
		Copyright:       fmt.Sprintf("Copyright (c) %d", 2026),
	}

	if err := app.Run(os.Args); err != nil {
		setupLogger(false).Fatal("run failed", zap.Error(err))
	}
}

func setupLogger(verbose bool) *zap.Logger {
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	enabler := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		if verbose {
			return true
		}
		return level >= zapcore.InfoLevel
	})
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(logConfig),
		os.Stderr,
		enabler,
	))
}

func loadConfig(c *cli.Context, addr string, workers int) (*config.Config, *zap.Logger, error) {
	logger := setupLogger(c.Bool("verbose"))
	cfg, err := config.Load(c.String("root"), addr, workers, c.Bool("verbose"), c.String("cors-origins"))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openCatalog(cfg *config.Config, logger *zap.Logger) (*catalog.Catalog, error) {
	cat := catalog.New(cfg.CatalogPath, logger)
	if err := cat.Load(); err != nil {
		return nil, err
	}
	return cat, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the HTTP API the web UI talks to",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address", Value: ":8080"},
			&cli.IntFlag{Name: "workers", Usage: "unlock worker count (0 = auto)", Value: 0},
			&cli.StringFlag{Name: "cors-origins", Usage: "comma-separated list of allowed UI origins"},
			&cli.StringFlag{Name: "qmc-mmkv", Usage: "path to qmc mmkv vault (.crc file also required)"},
			&cli.StringFlag{Name: "qmc-mmkv-key", Usage: "mmkv password (16 ascii chars)"},
			&cli.BoolFlag{Name: "watch", Usage: "watch New/ and Unlocked/ and process files as they land", Value: false},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c, c.String("addr"), c.Int("workers"))
			if err != nil {
				return err
			}
			cfg.QMCMMKVPath = c.String("qmc-mmkv")
			cfg.QMCMMKVKey = c.String("qmc-mmkv-key")

			cat, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			srv := httpapi.New(cfg.Dirs, cat, logger, cfg.CORSOrigins, cfg.Workers).WithMMKV(cfg.QMCMMKVPath, cfg.QMCMMKVKey)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if c.Bool("watch") {
				router := ingest.NewRouter(cfg.Dirs.Library, cfg.Dirs.Duplicate, cfg.Dirs.Trash, cfg.Dirs.Thumbnail, cat, logger)
				go func() {
					err := watch.Dir(ctx, cfg.Dirs.New, func(path string) error {
						router.AddMusicFile(path)
						return nil
					}, logger)
					if err != nil {
						logger.Error("watch New/ stopped", zap.Error(err))
					}
				}()
				go func() {
					err := watch.Dir(ctx, cfg.Dirs.Unlocked, func(string) error {
						pool := unlock.NewPool(cfg.Dirs.Unlocked, cfg.Dirs.New, cfg.Workers, logger).WithMMKV(cfg.QMCMMKVPath, cfg.QMCMMKVKey)
						_, _, err := pool.Run(ctx, nil)
						return err
					}, logger)
					if err != nil {
						logger.Error("watch Unlocked/ stopped", zap.Error(err))
					}
				}()
			}

			return srv.Run(ctx, cfg.Addr)
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "ingest every file currently sitting in New/",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c, "", 0)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			router := ingest.NewRouter(cfg.Dirs.Library, cfg.Dirs.Duplicate, cfg.Dirs.Trash, cfg.Dirs.Thumbnail, cat, logger)

			entries, err := os.ReadDir(cfg.Dirs.New)
			if err != nil {
				if os.IsNotExist(err) {
					logger.Info("New/ does not exist, nothing to ingest")
					return nil
				}
				return err
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				res := router.AddMusicFile(filepath.Join(cfg.Dirs.New, e.Name()))
				logger.Info("ingested", zap.String("file", e.Name()), zap.String("status", string(res.Status)))
			}
			return nil
		},
	}
}

func unlockCommand() *cli.Command {
	return &cli.Command{
		Name:  "unlock",
		Usage: "decrypt every supported file in Unlocked/ into New/",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "workers", Usage: "worker count (0 = auto)", Value: 0},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c, "", c.Int("workers"))
			if err != nil {
				return err
			}
			pool := unlock.NewPool(cfg.Dirs.Unlocked, cfg.Dirs.New, cfg.Workers, logger)
			_, summary, err := pool.Run(context.Background(), func(done, total, succeeded, failed int) {
				logger.Info("unlock progress", zap.Int("done", done), zap.Int("total", total), zap.Int("succeeded", succeeded), zap.Int("failed", failed))
			})
			if err != nil {
				return err
			}
			logger.Info("unlock finished", zap.Int("total", summary.Total), zap.Int("succeeded", summary.Succeeded), zap.Int("failed", summary.Failed))
			return nil
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "sweep Library/ for duplicate files and move them to Duplicate/",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c, "", 0)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			router := ingest.NewRouter(cfg.Dirs.Library, cfg.Dirs.Duplicate, cfg.Dirs.Trash, cfg.Dirs.Thumbnail, cat, logger)
			moved, err := router.CheckDuplicatesInLibrary()
			if err != nil {
				return err
			}
			logger.Info("duplicate sweep complete", zap.Int("moved", len(moved)))
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print catalog totals",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c, "", 0)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			stats := cat.Statistics()
			fmt.Printf("songs: %d\ntotal size: %d bytes\n", stats.Count, stats.TotalSizeBytes)
			for ext, n := range stats.ByExtension {
				fmt.Printf("  .%s: %d\n", ext, n)
			}
			return nil
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "export a timestamped catalog backup",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c, "", 0)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			path, err := cat.ExportBackup(cfg.Root)
			if err != nil {
				return err
			}
			logger.Info("backup written", zap.String("path", path))
			return nil
		},
	}
}
