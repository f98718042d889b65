package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-client/internal/client"
	"github.com/xenking/marketplace-client/internal/domain/cart"
	"github.com/xenking/marketplace-client/internal/domain/product"
)

func (c *cli) productsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalog",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all products",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				kc, err := c.open(cmd.Context())
				if err != nil {
					return err
				}
				products, err := kc.API.ListProducts(cmd.Context())
				if err != nil {
					return errors.Wrap(err, "list products")
				}
				return writeProducts(cmd.OutOrStdout(), products)
			},
		},
		&cobra.Command{
			Use:   "show <id>...",
			Short: "Show product details",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				kc, err := c.open(cmd.Context())
				if err != nil {
					return err
				}

				products := make([]product.Product, len(args))
				g, ctx := errgroup.WithContext(cmd.Context())
				g.SetLimit(4)
				for i, id := range args {
					g.Go(func() error {
						p, err := kc.API.GetProduct(ctx, id)
						if errors.Is(err, client.ErrNotFound) {
							return errors.Errorf("product %q not found", id)
						}
						if err != nil {
							return errors.Wrapf(err, "get product %q", id)
						}
						products[i] = p
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for i, p := range products {
					if i > 0 {
						fmt.Fprintln(out)
					}
					writeProduct(out, p)
				}
				return nil
			},
		},
	)
	return cmd
}

func writeProducts(w io.Writer, products []product.Product) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tCATEGORY")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, cart.FormatAmount(p.Price), stockLabel(p), categoryName(p))
	}
	return tw.Flush()
}

func writeProduct(w io.Writer, p product.Product) {
	fmt.Fprintf(w, "%s (%s)\n", p.Name, p.ID)
	fmt.Fprintf(w, "  Price:    %s\n", cart.FormatAmount(p.Price))
	fmt.Fprintf(w, "  Stock:    %s\n", stockLabel(p))
	if name := categoryName(p); name != "-" {
		fmt.Fprintf(w, "  Category: %s\n", name)
	}
	if p.Image != "" {
		fmt.Fprintf(w, "  Image:    %s\n", p.Image)
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		fmt.Fprintf(w, "  %s\n", d)
	}
}

func stockLabel(p product.Product) string {
	if !p.InStock() {
		return "out of stock"
	}
	return fmt.Sprintf("%d", p.Stock)
}

func categoryName(p product.Product) string {
	if p.Category == nil || p.Category.Name == "" {
		return "-"
	}
	return p.Category.Name
}
