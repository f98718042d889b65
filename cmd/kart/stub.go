package main

import (
	"github.com/spf13/cobra"

	appkg "github.com/xenking/marketplace-client/internal/app"
)

func (c *cli) stubCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve the stub marketplace backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := c.cfg.Stub
			if addr != "" {
				cfg.Addr = addr
			}
			return appkg.RunStub(cmd.Context(), c.lg.Named("stub"), c.tel, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides KART_STUB_ADDR)")
	return cmd
}
