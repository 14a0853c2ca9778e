package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/vecd"
	"github.com/hupe1980/vecd/blobstore"
	minioblob "github.com/hupe1980/vecd/blobstore/minio"
	s3blob "github.com/hupe1980/vecd/blobstore/s3"
	"github.com/hupe1980/vecd/resource"
	"github.com/hupe1980/vecd/scalar"
	"github.com/hupe1980/vecd/server"
	"github.com/hupe1980/vecd/snapshot"
)

var rootCmd = &cobra.Command{
	Use:   "vecd",
	Short: `A vector database daemon with metadata filtering, durable document storage and snapshots.`,
	RunE:  run,
}

func init() {
	viper.SetDefault("addr", ":8080")
	viper.SetDefault("log-format", "json")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("max-jobs", 1)
	viper.SetDefault("compression", "zstd")
	viper.SetDefault("snapshot-prefix", "snapshots/")
	viper.SetDefault("restore-on-start", true)

	rootCmd.PersistentFlags().String("addr", ":8080", "listen address")
	rootCmd.PersistentFlags().String("data", "", "data directory; empty keeps documents in memory")
	rootCmd.PersistentFlags().String("log-format", "json", `log format, "json" or "text"`)
	rootCmd.PersistentFlags().String("log-level", "info", "minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Int64("memory-limit-mb", 0, "request payload memory budget in MiB, 0 for unlimited")
	rootCmd.PersistentFlags().Int64("max-jobs", 1, "maximum concurrent background jobs")
	rootCmd.PersistentFlags().String("compression", "zstd", "snapshot compression (none, lz4, zstd)")
	rootCmd.PersistentFlags().String("snapshot-backend", "", `snapshot backend ("local", "s3", "minio"); empty disables snapshots`)
	rootCmd.PersistentFlags().String("snapshot-dir", "", "local snapshot directory, defaults to <data>/snapshots")
	rootCmd.PersistentFlags().String("snapshot-bucket", "", "bucket for the s3 and minio backends")
	rootCmd.PersistentFlags().String("snapshot-prefix", "snapshots/", "key prefix for archives within the store")
	rootCmd.PersistentFlags().Duration("snapshot-interval", 0, "periodic snapshot interval, 0 disables")
	rootCmd.PersistentFlags().Int("snapshot-keep", 0, "archives to retain after a periodic snapshot, 0 keeps all")
	rootCmd.PersistentFlags().Int64("snapshot-rate-mb", 0, "snapshot IO throughput cap in MiB/s, 0 for unlimited")
	rootCmd.PersistentFlags().Bool("restore-on-start", true, "restore the latest archive on startup")
	rootCmd.PersistentFlags().String("s3-region", "", "AWS region for the s3 backend")
	rootCmd.PersistentFlags().String("s3-latest-table", "", "DynamoDB table tracking the latest archive")
	rootCmd.PersistentFlags().String("minio-endpoint", "", "MinIO endpoint, host:port")
	rootCmd.PersistentFlags().String("minio-access-key", "", "MinIO access key")
	rootCmd.PersistentFlags().String("minio-secret-key", "", "MinIO secret key")
	rootCmd.PersistentFlags().Bool("minio-secure", false, "use TLS for MinIO")

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})

	viper.SetEnvPrefix("vecd")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func run(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	slogger := logger.Logger

	compression, err := snapshot.ParseCompression(viper.GetString("compression"))
	if err != nil {
		return err
	}

	controller := resource.NewController(resource.Config{
		MemoryLimitBytes:    viper.GetInt64("memory-limit-mb") << 20,
		MaxBackgroundJobs:   viper.GetInt64("max-jobs"),
		SnapshotBytesPerSec: viper.GetInt64("snapshot-rate-mb") << 20,
	})

	collector := vecd.NewPrometheusCollector(prometheus.NewRegistry())

	dbOpts := []vecd.Option{
		vecd.WithLogger(logger),
		vecd.WithMetricsCollector(collector),
	}

	if data := viper.GetString("data"); data != "" {
		store, err := scalar.OpenBadger(scalar.DefaultBadgerConfig(filepath.Join(data, "scalar")))
		if err != nil {
			return fmt.Errorf("open document store: %w", err)
		}

		dbOpts = append(dbOpts, vecd.WithScalarStore(store))
	}

	db, err := vecd.New(dbOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slogger.Error("close database", "error", err)
		}
	}()

	snapshotFns := []func(o *vecd.SnapshotOptions){func(o *vecd.SnapshotOptions) {
		o.Compression = compression
	}}
	target := db.SnapshotTarget(snapshotFns...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var manager *snapshot.Manager

	if backend := viper.GetString("snapshot-backend"); backend != "" {
		store, tracker, err := newBlobStore(ctx, backend)
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}

		manager = snapshot.NewManager(store, func(o *snapshot.ManagerOptions) {
			o.Prefix = viper.GetString("snapshot-prefix")
			o.Latest = tracker
			o.Controller = controller
		})

		if viper.GetBool("restore-on-start") {
			switch err := manager.LoadLatest(ctx, target); {
			case err == nil:
				slogger.Info("restored latest snapshot")
			case errors.Is(err, blobstore.ErrNotFound), errors.Is(err, s3blob.ErrNoSnapshot):
				slogger.Info("no snapshot to restore")
			default:
				return fmt.Errorf("restore latest snapshot: %w", err)
			}
		}

		if interval := viper.GetDuration("snapshot-interval"); interval > 0 {
			go periodicSnapshots(ctx, slogger, manager, target, controller, interval, viper.GetInt("snapshot-keep"))
		}
	}

	srv := server.New(db, func(o *server.Options) {
		o.Addr = viper.GetString("addr")
		o.Logger = slogger
		o.Metrics = collector
		o.Snapshots = manager
		o.SnapshotOptions = snapshotFns
		o.Controller = controller
	})

	c := make(chan os.Signal, 1)
	// SIGTERM is what kill, Kubernetes and systemd send; treat it as
	// the graceful shutdown signal.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		slogger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slogger.Error("shutdown", "error", err)
		}

		cancel()
	}()

	slogger.Info("vecd listening", "addr", viper.GetString("addr"))

	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func newLogger() *vecd.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}

	if viper.GetString("log-format") == "text" {
		return vecd.NewTextLogger(level)
	}

	return vecd.NewJSONLogger(level)
}

func newBlobStore(ctx context.Context, backend string) (blobstore.Store, snapshot.LatestTracker, error) {
	switch backend {
	case "local":
		dir := viper.GetString("snapshot-dir")
		if dir == "" {
			data := viper.GetString("data")
			if data == "" {
				return nil, nil, errors.New("local snapshot backend needs --snapshot-dir or --data")
			}

			dir = filepath.Join(data, "snapshots")
		}

		store, err := blobstore.NewLocalStore(dir)

		return store, nil, err

	case "s3":
		bucket := viper.GetString("snapshot-bucket")
		if bucket == "" {
			return nil, nil, errors.New("s3 snapshot backend needs --snapshot-bucket")
		}

		store, err := s3blob.New(ctx, bucket, s3blob.WithRegion(viper.GetString("s3-region")))
		if err != nil {
			return nil, nil, err
		}

		var tracker snapshot.LatestTracker

		if table := viper.GetString("s3-latest-table"); table != "" {
			var cfgFns []func(*awsconfig.LoadOptions) error
			if region := viper.GetString("s3-region"); region != "" {
				cfgFns = append(cfgFns, awsconfig.WithRegion(region))
			}

			cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgFns...)
			if err != nil {
				return nil, nil, err
			}

			baseURI := fmt.Sprintf("s3://%s/%s", bucket, viper.GetString("snapshot-prefix"))
			tracker = s3blob.NewLatestStore(dynamodb.NewFromConfig(cfg), table, baseURI)
		}

		return store, tracker, nil

	case "minio":
		bucket := viper.GetString("snapshot-bucket")
		endpoint := viper.GetString("minio-endpoint")

		if bucket == "" || endpoint == "" {
			return nil, nil, errors.New("minio snapshot backend needs --snapshot-bucket and --minio-endpoint")
		}

		client, err := minio.New(endpoint, &minio.Options{
			Creds: credentials.NewStaticV4(
				viper.GetString("minio-access-key"),
				viper.GetString("minio-secret-key"),
				"",
			),
			Secure: viper.GetBool("minio-secure"),
		})
		if err != nil {
			return nil, nil, err
		}

		return minioblob.NewStore(client, bucket, ""), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", backend)
	}
}

func periodicSnapshots(
	ctx context.Context,
	logger *slog.Logger,
	manager *snapshot.Manager,
	target snapshot.Target,
	controller *resource.Controller,
	interval time.Duration,
	keep int,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !controller.TryAcquireJob() {
			logger.Warn("skipping periodic snapshot, another job is running")
			continue
		}

		name, err := manager.Save(ctx, target)
		if err != nil {
			controller.ReleaseJob()
			logger.Error("periodic snapshot", "error", err)

			continue
		}

		logger.Info("periodic snapshot written", "name", name)

		if keep > 0 {
			if deleted, err := manager.Prune(ctx, keep); err != nil {
				logger.Error("prune snapshots", "error", err)
			} else if len(deleted) > 0 {
				logger.Info("pruned snapshots", "count", len(deleted))
			}
		}

		controller.ReleaseJob()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
