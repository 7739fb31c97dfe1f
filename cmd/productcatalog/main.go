// cmd/productcatalog/main.go
package main

import (
	"context"
	"os"

	"github.com/dalemusser/productcatalog/app"
	"github.com/dalemusser/productcatalog/internal/app/bootstrap"
)

func main() {
	// Run logs the failure itself.
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		os.Exit(1)
	}
}
