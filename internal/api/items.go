package api

import (
	"context"
	"fmt"
	"net/url"
)

// GetItems fetches the full upstream item catalog.
func (c *Client) GetItems(ctx context.Context) ([]APIItem, error) {
	var resp ItemsResponse
	if err := c.get(ctx, "/items", nil, &resp); err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	return resp.Payload.Items, nil
}

// GetItemDetail fetches detail for a single item by its url_name.
func (c *Client) GetItemDetail(ctx context.Context, urlName string) (*APIItemDetail, error) {
	var resp ItemDetailResponse
	if err := c.get(ctx, "/items/"+url.PathEscape(urlName), nil, &resp); err != nil {
		return nil, fmt.Errorf("get item %s: %w", urlName, err)
	}
	return &resp.Payload.Item, nil
}

// GetItemOrders fetches the current order snapshot for an item.
func (c *Client) GetItemOrders(ctx context.Context, urlName string) ([]APIOrder, error) {
	var resp OrdersResponse
	if err := c.get(ctx, "/items/"+url.PathEscape(urlName)+"/orders", nil, &resp); err != nil {
		return nil, fmt.Errorf("get orders %s: %w", urlName, err)
	}
	return resp.Payload.Orders, nil
}
