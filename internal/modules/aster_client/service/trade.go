package service

import (
	"context"
	"fmt"
	"net/http"

	"aster_bot/internal/models"
)

const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"

	PositionSideBoth = "BOTH"
)

// OrderRequest — параметры /fapi/v3/order. Quantity и Price уже отформатированы под фильтры.
type OrderRequest struct {
	Symbol           string
	Side             models.Side
	Type             string
	Quantity         string
	Price            string
	PositionSide     string
	TimeInForce      string
	ReduceOnly       bool
	NewClientOrderID string
}

func (r OrderRequest) params() Params {
	typ := r.Type
	if typ == "" {
		typ = OrderTypeMarket
	}
	posSide := r.PositionSide
	if posSide == "" {
		posSide = PositionSideBoth
	}
	p := Params{
		"symbol":       r.Symbol,
		"side":         string(r.Side),
		"type":         typ,
		"quantity":     r.Quantity,
		"positionSide": posSide,
		"reduceOnly":   r.ReduceOnly,
	}
	if r.Price != "" {
		p["price"] = r.Price
	}
	if typ == OrderTypeLimit {
		tif := r.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		p["timeInForce"] = tif
	}
	if r.NewClientOrderID != "" {
		p["newClientOrderId"] = r.NewClientOrderID
	}
	return p
}

func (c *Client) PlaceOrder(ctx context.Context, r OrderRequest) (models.OrderResult, error) {
	if r.Symbol == "" || r.Side == "" || r.Quantity == "" {
		return models.OrderResult{}, fmt.Errorf("place order: symbol, side and quantity are required")
	}
	var w orderWire
	if err := c.signed(ctx, http.MethodPost, "/fapi/v3/order", r.params(), &w); err != nil {
		return models.OrderResult{}, err
	}
	return w.toModel(), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (models.OrderResult, error) {
	var w orderWire
	params := Params{"symbol": symbol, "orderId": orderID}
	if err := c.signed(ctx, http.MethodDelete, "/fapi/v3/order", params, &w); err != nil {
		return models.OrderResult{}, err
	}
	return w.toModel(), nil
}

func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	return c.signed(ctx, http.MethodDelete, "/fapi/v3/allOpenOrders", Params{"symbol": symbol}, nil)
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]models.OrderResult, error) {
	params := Params{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	var rows []orderWire
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/openOrders", params, &rows); err != nil {
		return nil, err
	}
	out := make([]models.OrderResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *Client) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	params := Params{"symbol": symbol, "leverage": leverage}
	return c.signed(ctx, http.MethodPost, "/fapi/v1/leverage", params, nil)
}

// ChangeMarginType: ISOLATED | CROSSED. Если режим уже стоит, биржа отвечает ошибкой.
func (c *Client) ChangeMarginType(ctx context.Context, symbol, marginType string) error {
	params := Params{"symbol": symbol, "marginType": marginType}
	return c.signed(ctx, http.MethodPost, "/fapi/v1/marginType", params, nil)
}
