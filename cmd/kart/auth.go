package main

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/marketplace-client/internal/domain/auth"
	"github.com/xenking/marketplace-client/internal/domain/cart"
)

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Log in and switch to the server cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			u, err := kc.Session.Login(cmd.Context(), args[0], args[1])
			if err != nil {
				return errors.Wrap(err, "login")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", u.DisplayName(), u.Email)
			printCartLine(cmd, kc.Cart.Snapshot())
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <email> <password>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			u, err := kc.Session.Register(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return errors.Wrap(err, "register")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s <%s>\n", u.DisplayName(), u.Email)
			return nil
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := kc.Session.Logout(cmd.Context()); err != nil {
				return errors.Wrap(err, "logout")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			printCartLine(cmd, kc.Cart.Snapshot())
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			s, err := kc.Session.Session(cmd.Context())
			if errors.Is(err, auth.ErrNoSession) {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in, using the guest cart")
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Logged in as %s <%s>\n", s.User.DisplayName(), s.User.Email)
			if s.User.ID != "" {
				fmt.Fprintf(out, "User ID: %s\n", s.User.ID)
			}
			if exp, ok := s.ExpiresAt(); ok {
				state := "expires"
				if exp.Before(time.Now()) {
					state = "expired"
				}
				fmt.Fprintf(out, "Session %s %s\n", state, exp.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func printCartLine(cmd *cobra.Command, c cart.Cart) {
	fmt.Fprintf(cmd.OutOrStdout(), "Cart (%s): %d items, total %s\n", c.Mode, c.Count(), cart.FormatAmount(c.Total()))
}
