package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appkg "github.com/xenking/marketplace-client/internal/app"
)

// cli holds what every command shares. The client is opened on first use,
// so "kart stub" never touches the device store.
type cli struct {
	lg  *zap.Logger
	tel appkg.Telemetry

	loadConfig func() (*appkg.Config, error)
	apiURL     string
	statePath  string

	cfg    *appkg.Config
	client *appkg.Client
}

func newCLI(lg *zap.Logger, tel appkg.Telemetry) *cli {
	return &cli{lg: lg, tel: tel, loadConfig: appkg.LoadConfig}
}

func (c *cli) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "kart",
		Short:        "Marketplace client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if c.apiURL != "" {
				cfg.APIURL = c.apiURL
			}
			if c.statePath != "" {
				cfg.StatePath = c.statePath
			}
			c.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&c.apiURL, "api-url", "", "marketplace API root (overrides KART_API_URL)")
	cmd.PersistentFlags().StringVar(&c.statePath, "state", "", "state file (overrides KART_STATE_PATH)")

	cmd.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.productsCmd(),
		c.cartCmd(),
		c.doctorCmd(),
		c.stubCmd(),
	)
	return cmd
}

func (c *cli) open(ctx context.Context) (*appkg.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	if c.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	client, err := appkg.NewClient(ctx, c.lg, c.tel, c.cfg)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *cli) close() {
	if c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil {
		c.lg.Warn("Close state", zap.Error(err))
	}
	c.client = nil
}
