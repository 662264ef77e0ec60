package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/anicoll/vrm-integration/internal/pkg/cache"
	"github.com/anicoll/vrm-integration/internal/pkg/config"
	"github.com/anicoll/vrm-integration/internal/pkg/contxt"
	"github.com/anicoll/vrm-integration/internal/pkg/controller"
	"github.com/anicoll/vrm-integration/internal/pkg/database"
	"github.com/anicoll/vrm-integration/internal/pkg/database/migration"
	"github.com/anicoll/vrm-integration/internal/pkg/metrics"
	"github.com/anicoll/vrm-integration/internal/pkg/mqtt"
	"github.com/anicoll/vrm-integration/internal/pkg/publisher"
	"github.com/anicoll/vrm-integration/internal/pkg/server"
	"github.com/anicoll/vrm-integration/internal/pkg/vrm"
	"github.com/anicoll/vrm-integration/pkg/hasher"
)

var (
	errCron        = errors.New("cron error")
	errMissingKey  = errors.New("VRM_API_KEY is required")
	pollTimeout    = 2 * time.Minute
	cleanupTimeout = time.Minute
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	return cfg, nil
}

// VrmCommand is the main entry point: it wires the upstream client, cache,
// publishers and controller and runs until interrupted.
func VrmCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	if cfg.VrmCfg.APIKey == "" {
		return errMissingKey
	}

	ctx := c.Context
	registry := metrics.NewRegistry()
	client := vrm.New(cfg.VrmCfg)
	diagnostics := cache.New(client, cfg.DiagnosticsTTL(), cache.WithObserver(registry))
	opts := []controller.Option{
		controller.WithTemperatureUnit(cfg.TemperatureUnit()),
		controller.WithRecorder(registry),
	}

	var db Database
	if cfg.DatabaseURL != "" {
		if err := migration.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		pg, err := database.NewDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := publisher.RegisterPublisher("postgres", pg); err != nil {
			return err
		}
		opts = append(opts, controller.WithStore(pg))
		db = pg
	}

	if cfg.MqttCfg.Host != "" {
		mqttSvc := mqtt.New(paho_mqtt.NewClient(mqtt.Options(cfg.MqttCfg)), cfg.MqttCfg.TopicPrefix)
		if err := mqttSvc.Connect(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer mqttSvc.Close()
		if err := publisher.RegisterPublisher("mqtt", mqttSvc); err != nil {
			return err
		}
	}

	ctrl := controller.New(client, diagnostics, publisher.Hub{}, opts...)
	logger.Info("starting vrm integration",
		zap.String("temperature_unit", string(cfg.TemperatureUnit())),
		zap.Duration("cache_ttl", diagnostics.TTL()),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("database", db != nil),
		zap.Bool("mqtt", cfg.MqttCfg.Host != ""))

	errorChan := make(chan error, 1000)
	return run(ctx, cfg, ctrl, errorChan, logger, db, registry.Handler())
}

func run(ctx context.Context, cfg *config.Config, ctrl VrmController, errorChan chan error, logger *zap.Logger, db Database, metricsHandler http.Handler) error {
	eg, ctx := errgroup.WithContext(ctx)

	if err := ctrl.Discover(ctx); err != nil {
		logger.Warn("initial discovery failed, retrying on next poll", zap.Error(err))
	}

	eg.Go(func() error {
		return cronPoll(ctx, ctrl, cfg.PollInterval, errorChan, logger)
	})

	if db != nil {
		eg.Go(func() error {
			return cronDbCleanup(ctx, db, cfg.CleanupSchedule, errorChan, logger)
		})
	}

	if cfg.HTTPAddr != "" {
		srv := server.NewHTTPServer(cfg.HTTPAddr, server.New(ctrl, db, metricsHandler, cfg.AdminTokenHash))
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := contxt.NewContext(5 * time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		eg.Go(func() error {
			logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		// handle any async errors from the jobs
		for {
			select {
			case err, ok := <-errorChan:
				if !ok {
					errorChan = nil
					continue
				}
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Warn("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

func pollOnce(ctrl VrmController, logger *zap.Logger) {
	ctx, cancel := contxt.NewContext(pollTimeout)
	defer cancel()
	if err := ctrl.Poll(ctx); err != nil {
		logger.Warn("poll failed", zap.Error(err))
	}
}

func cronPoll(ctx context.Context, ctrl VrmController, interval time.Duration, errChan chan error, logger *zap.Logger) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	pollOnce(ctrl, logger)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		pollOnce(ctrl, logger)
	}); err != nil {
		errChan <- fmt.Errorf("%w: %w", errCron, err)
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func cronDbCleanup(ctx context.Context, db Database, schedule string, errChan chan error, logger *zap.Logger) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		cleanupCtx, cancel := contxt.NewContext(cleanupTimeout)
		defer cancel()
		if err := db.Cleanup(cleanupCtx); err != nil {
			logger.Error("error cleaning up database", zap.Error(err))
			errChan <- fmt.Errorf("%w: %w", errCron, err)
			return
		}
		logger.Info("database cleanup complete")
	}); err != nil {
		return fmt.Errorf("cleanup schedule %q: %w", schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func newLogger(level, file string) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	var err error
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger, err := logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, err
	}
	if file == "" {
		return logger, nil
	}
	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(logCfg.EncoderConfig), rotating, logCfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

// DiscoverCommand prints the devices found on the account's installation.
func DiscoverCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, "")
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	if cfg.VrmCfg.APIKey == "" {
		return errMissingKey
	}

	installationID, ids, err := vrm.New(cfg.VrmCfg).Discover(c.Context)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "installation %d\n", installationID)
	fmt.Fprintln(w, "KIND\tINSTANCE\tSERIAL\tNAME\tPRODUCT")
	for _, id := range ids {
		instance := "-"
		if id.HasInstance() {
			instance = fmt.Sprint(id.Instance)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id.Kind, instance, id.Serial, id.Name, id.ProductName)
	}
	return w.Flush()
}

// HashTokenCommand generates an admin token and the hash to configure as ADMIN_TOKEN_HASH.
func HashTokenCommand(c *cli.Context) error {
	token := c.String("token")
	if token == "" {
		var err error
		if token, err = hasher.GenerateToken(32); err != nil {
			return err
		}
	}
	hash, err := hasher.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "token: %s\nADMIN_TOKEN_HASH=%s\n", token, hash)
	return nil
}
