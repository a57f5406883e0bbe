// Package catalog looks up product display data in the product service.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/utafrali/ecommerce-pricing/pkg/httpclient"
)

// maxConcurrentLookups caps in-flight product requests per quote.
const maxConcurrentLookups = 8

// Product is the subset of the product service's payload used for display.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	CategoryID string `json:"category_id,omitempty"`
}

type envelope struct {
	Data Product `json:"data"`
}

// Fetcher is satisfied by *httpclient.BreakerClient.
type Fetcher interface {
	GetJSON(ctx context.Context, url string, dst any) error
}

// Client resolves product ids against the product service.
type Client struct {
	fetcher Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a catalog client rooted at baseURL.
func NewClient(fetcher Fetcher, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Lookup fetches one product.
func (c *Client) Lookup(ctx context.Context, productID string) (*Product, error) {
	var env envelope
	u := c.baseURL + "/api/v1/products/" + url.PathEscape(productID)
	if err := c.fetcher.GetJSON(ctx, u, &env); err != nil {
		return nil, fmt.Errorf("lookup product %s: %w", productID, err)
	}
	return &env.Data, nil
}

// Names resolves display names for the given product ids, at most
// maxConcurrentLookups at a time.
// Products that cannot be resolved are left out; display text is cosmetic
// so failures are logged at debug and never returned.
func (c *Client) Names(ctx context.Context, productIDs []string) map[string]string {
	names := make(map[string]string, len(productIDs))
	if c == nil || c.fetcher == nil {
		return names
	}

	var (
		mu   sync.Mutex
		g    errgroup.Group
		seen = make(map[string]struct{}, len(productIDs))
	)
	g.SetLimit(maxConcurrentLookups)
	for _, id := range productIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		g.Go(func() error {
			p, err := c.Lookup(ctx, id)
			if err != nil {
				c.logger.DebugContext(ctx, "product lookup failed",
					slog.String("product_id", id),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if p.Name == "" {
				return nil
			}
			mu.Lock()
			names[id] = p.Name
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return names
}

var _ Fetcher = (*httpclient.BreakerClient)(nil)
