package main

import (
	"context"
	stdlog "log"

	"github.com/PayeTonKawa2025/products-api/internal/app"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("products-api failed: %v", err)
	}
}

func run() error {
	application, err := app.NewApplication(context.Background())
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}
