// Package api talks to the Tracker backend's query surface. Every result is
// independently cacheable; the cache store refetches through Fetcher when
// the sync channel reports a change.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/trackerhq/tracker-core/internal/cache"
	"github.com/trackerhq/tracker-core/internal/credential"
)

// Client is an HTTP client for the backend query surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cred       credential.Provider
	logger     *slog.Logger
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, cred credential.Provider, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cred:   cred,
		logger: logger,
	}
}

// BudgetSummary fetches the spending summary for one month.
func (c *Client) BudgetSummary(ctx context.Context, year, month int) (BudgetSummary, error) {
	var out BudgetSummary
	err := c.getJSON(ctx, fmt.Sprintf("/api/budget/summary/%d/%d", year, month), &out)
	return out, err
}

// PantryItems fetches the full pantry listing.
func (c *Client) PantryItems(ctx context.Context) ([]PantryItem, error) {
	var out []PantryItem
	err := c.getJSON(ctx, "/api/pantry", &out)
	return out, err
}

// ExpiringSoon fetches pantry items approaching expiration.
func (c *Client) ExpiringSoon(ctx context.Context) ([]PantryItem, error) {
	var out []PantryItem
	err := c.getJSON(ctx, "/api/pantry/expiring", &out)
	return out, err
}

// ShoppingList fetches the suggested shopping list.
func (c *Client) ShoppingList(ctx context.Context) ([]PantryItem, error) {
	var out []PantryItem
	err := c.getJSON(ctx, "/api/pantry/shopping-list", &out)
	return out, err
}

// Goals fetches the household's savings goals.
func (c *Client) Goals(ctx context.Context) ([]Goal, error) {
	var out []Goal
	err := c.getJSON(ctx, "/api/goals", &out)
	return out, err
}

// BankTransactions fetches imported bank transactions.
func (c *Client) BankTransactions(ctx context.Context) ([]BankTransaction, error) {
	var out []BankTransaction
	err := c.getJSON(ctx, "/api/bank/transactions", &out)
	return out, err
}

// Receipts fetches the receipt listing.
func (c *Client) Receipts(ctx context.Context) ([]Receipt, error) {
	var out []Receipt
	err := c.getJSON(ctx, "/api/receipts", &out)
	return out, err
}

// Notifications fetches in-app notifications.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	err := c.getJSON(ctx, "/api/notifications", &out)
	return out, err
}

// InflationHistory fetches the price history for a named item.
func (c *Client) InflationHistory(ctx context.Context, itemName string) ([]PricePoint, error) {
	var out []PricePoint
	err := c.getJSON(ctx, "/api/budget/inflation/"+itemName, &out)
	return out, err
}

// Fetcher returns the cache store's refetch function. The first key segment
// selects the resource; budget keys carry year and month segments.
func (c *Client) Fetcher() cache.FetchFunc {
	return func(ctx context.Context, key cache.Key) ([]byte, error) {
		path, err := pathForKey(key)
		if err != nil {
			return nil, err
		}
		return c.getRaw(ctx, path)
	}
}

func pathForKey(key cache.Key) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("empty cache key")
	}
	switch key[0] {
	case "pantry":
		return "/api/pantry", nil
	case "expiring":
		return "/api/pantry/expiring", nil
	case "shopping-list":
		return "/api/pantry/shopping-list", nil
	case "receipts":
		return "/api/receipts", nil
	case "goals":
		return "/api/goals", nil
	case "bank-transactions":
		return "/api/bank/transactions", nil
	case "notifications":
		return "/api/notifications", nil
	case "budget":
		if len(key) != 3 {
			return "", fmt.Errorf("budget key wants [budget year month], got %q", key.String())
		}
		year, err := strconv.Atoi(key[1])
		if err != nil {
			return "", fmt.Errorf("budget key year: %w", err)
		}
		month, err := strconv.Atoi(key[2])
		if err != nil {
			return "", fmt.Errorf("budget key month: %w", err)
		}
		return fmt.Sprintf("/api/budget/summary/%d/%d", year, month), nil
	default:
		return "", fmt.Errorf("no endpoint for cache key %q", key.String())
	}
}

// BudgetKey is the cache key for one month's budget summary.
func BudgetKey(year, month int) cache.Key {
	return cache.NewKey("budget", strconv.Itoa(year), fmt.Sprintf("%02d", month))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token, ok := c.cred.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("fetch", "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return body, nil
}
