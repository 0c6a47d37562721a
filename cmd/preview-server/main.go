// Command preview-server serves previews of a row store over Arrow Flight.
//
// Usage:
//
//	preview-server -config preview.yaml
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"
	"google.golang.org/grpc"

	preview "github.com/hugr-lab/preview-go"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := preview.Defaults()
	if configPath != "" {
		var err error
		if cfg, err = preview.LoadConfig(configPath, os.Getenv); err != nil {
			return err
		}
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	eng, cleanup, err := preview.NewEngine(cfg, db, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	config := preview.ServerConfig{
		Engine:         eng,
		Logger:         logger,
		MaxMessageSize: cfg.MaxMessageSize,
	}
	grpcServer := grpc.NewServer(preview.ServerOptions(config)...)
	if err := preview.NewServer(grpcServer, config); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		grpcServer.GracefulStop()
	}()

	logger.Info("Preview server listening",
		"address", lis.Addr().String(),
		"driver", cfg.Database.Driver,
		"cache", !cfg.Cache.Disabled,
	)
	return grpcServer.Serve(lis)
}
