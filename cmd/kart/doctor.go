package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

func (c *cli) doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the device store and the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			h := kc.Health()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "API:   %s\n", kc.API.BaseURL())
			fmt.Fprintf(out, "State: %s\n", kc.Store.Path())

			live := h.Live(cmd.Context())
			ready := h.Ready(cmd.Context())
			printChecks(out, "live", live)
			printChecks(out, "ready", ready)
			if len(live)+len(ready) > 0 {
				return errors.New("some checks failed")
			}
			return nil
		},
	}
}

func printChecks(w io.Writer, check string, failures map[string]string) {
	if len(failures) == 0 {
		fmt.Fprintf(w, "%-6s ok\n", check)
		return
	}
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-6s %s: %s\n", check, name, failures[name])
	}
}
