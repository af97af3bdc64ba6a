package main

import (
	"NetFlowRollup/internal/collector"
	"NetFlowRollup/internal/config"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the YAML configuration file")
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	once := pflag.Bool("once", false, "run maintenance and a single processing cycle, then exit")
	maintainOnly := pflag.Bool("maintain-only", false, "only create missing partition tables, then exit")
	pflag.Parse()

	// A missing .env file is normal outside development.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load %s: %v", *envFile, err)
	}

	log.Println("Starting nf-collector...")
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := configureLogging(cfg.Log); err != nil {
		log.Fatalf("Invalid log configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	c, err := collector.New(cfg, afero.NewOsFs())
	if err != nil {
		log.Fatalf("Failed to initialize collector: %v", err)
	}

	switch {
	case *maintainOnly:
		err = c.Maintain(context.Background(), time.Now())
		stop(c)
	case *once:
		err = c.RunOnce(context.Background())
		stop(c)
	default:
		c.Start()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutdown signal received, stopping collector...")
		stop(c)
	}
	if err != nil {
		log.Fatalf("nf-collector failed: %v", err)
	}
	log.Println("Shutdown complete.")
}

func stop(c *collector.Collector) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	c.Stop(ctx)
}

// configureLogging applies the level and format of the log section.
func configureLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return xerrors.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}
