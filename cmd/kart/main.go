// Command kart is a terminal client for the marketplace: browse products,
// keep a guest cart on this device, log in to use the server cart.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		c := newCLI(lg, m)
		defer c.close()
		return c.root().ExecuteContext(ctx)
	})
}
