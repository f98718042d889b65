package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/marketplace-client/internal/client"
	"github.com/xenking/marketplace-client/internal/domain/auth"
	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/order"
)

func (c *cli) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the cart",
	}
	cmd.AddCommand(
		c.cartShowCmd(),
		c.cartAddCmd(),
		c.cartUpdateCmd(),
		c.cartRemoveCmd(),
		c.cartClearCmd(),
		c.cartCheckoutCmd(),
	)
	return cmd
}

func (c *cli) cartShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			return writeCart(cmd.OutOrStdout(), kc.Cart.Snapshot())
		},
	}
}

func (c *cli) cartAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := 1
			if len(args) == 2 {
				q, err := parseQuantity(args[1])
				if err != nil {
					return err
				}
				quantity = q
			}

			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			p, err := kc.API.GetProduct(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				return errors.Errorf("product %q not found", args[0])
			}
			if err != nil {
				return errors.Wrap(err, "get product")
			}
			if !p.InStock() {
				return errors.Errorf("%s is out of stock", p.Name)
			}

			snap, err := kc.Cart.AddItem(cmd.Context(), p, quantity)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d x %s\n", quantity, p.Name)
			printCartLine(cmd, snap)
			return nil
		},
	}
}

func (c *cli) cartUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <product-id> <quantity>",
		Short: "Set the quantity of a cart line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := kc.Cart.UpdateQuantity(cmd.Context(), args[0], quantity)
			if err != nil {
				return err
			}
			printCartLine(cmd, snap)
			return nil
		},
	}
}

func (c *cli) cartRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := kc.Cart.RemoveItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCartLine(cmd, snap)
			return nil
		},
	}
}

func (c *cli) cartClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			snap, err := kc.Cart.Clear(cmd.Context())
			if err != nil {
				return err
			}
			printCartLine(cmd, snap)
			return nil
		},
	}
}

func (c *cli) cartCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Price the cart against the current catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kc, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := kc.Session.Session(cmd.Context()); err != nil {
				if errors.Is(err, auth.ErrNoSession) {
					return errors.New("log in to check out")
				}
				return err
			}

			summary, err := order.NewService(kc.API).Preview(cmd.Context(), kc.Cart.Snapshot())
			if err != nil {
				return errors.Wrap(err, "checkout")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Order %s\n", summary.Reference)
			if err := writeLines(out, summary.Lines); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d items, total %s\n", summary.Items, cart.FormatAmount(summary.Total))
			fmt.Fprintln(out, "Placing orders is not available yet, nothing was charged")
			return nil
		},
	}
}

func parseQuantity(s string) (int, error) {
	q, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("quantity %q is not a number", s)
	}
	if q < 1 {
		return 0, errors.Errorf("quantity must be at least 1, got %d", q)
	}
	return q, nil
}

func writeCart(w io.Writer, c cart.Cart) error {
	if c.Empty() {
		fmt.Fprintf(w, "Cart (%s) is empty\n", c.Mode)
		return nil
	}
	if err := writeLines(w, c.Lines); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cart (%s): %d items, total %s\n", c.Mode, c.Count(), cart.FormatAmount(c.Total()))
	return nil
}

func writeLines(w io.Writer, lines []cart.Line) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tSUBTOTAL")
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			l.Product.ID, l.Product.Name, l.Quantity,
			cart.FormatAmount(l.Product.Price), cart.FormatAmount(l.Subtotal()),
		)
	}
	return tw.Flush()
}
