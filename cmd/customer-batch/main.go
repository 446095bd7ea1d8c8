package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/customer-batch/internal/app"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// embeddedConfig is the application configuration. ${VAR} placeholders are expanded at load.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	if err := app.RunApplication(ctx, envFilePath, config.EmbeddedConfig(embeddedConfig)); err != nil {
		logger.Fatalf("Application run failed: %v", err)
	}
	logger.Infof("Application exited.")
}
