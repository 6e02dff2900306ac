package service

import (
	"context"
	"net/http"

	"aster_bot/internal/models"
)

func (c *Client) Account(ctx context.Context) (Account, error) {
	var w accountWire
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/account", nil, &w); err != nil {
		return Account{}, err
	}
	return Account{
		TotalWalletBalance:    num(w.TotalWalletBalance),
		TotalUnrealizedProfit: num(w.TotalUnrealizedProfit),
		TotalMarginBalance:    num(w.TotalMarginBalance),
		AvailableBalance:      num(w.AvailableBalance),
		CanTrade:              w.CanTrade,
	}, nil
}

func (c *Client) Balances(ctx context.Context) ([]models.Balance, error) {
	var rows []balanceWire
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/balance", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]models.Balance, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Balance{
			Asset:            r.Asset,
			Balance:          num(r.Balance),
			AvailableBalance: num(r.AvailableBalance),
		})
	}
	return out, nil
}

// AvailableBalance — свободный остаток по активу; 0, если актива нет в ответе.
func (c *Client) AvailableBalance(ctx context.Context, asset string) (float64, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Asset == asset {
			return b.AvailableBalance, nil
		}
	}
	return 0, nil
}

// Positions — строки positionRisk; пустой symbol — по всем символам.
func (c *Client) Positions(ctx context.Context, symbol string) ([]models.PositionRisk, error) {
	params := Params{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	var rows []positionWire
	if err := c.signed(ctx, http.MethodGet, "/fapi/v3/positionRisk", params, &rows); err != nil {
		return nil, err
	}
	out := make([]models.PositionRisk, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
