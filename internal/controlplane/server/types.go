package server

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/services"
)

type priceResponse struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Change24h  decimal.Decimal `json:"change_24h"`
	ObservedAt time.Time       `json:"observed_at"`
}

type positionResponse struct {
	ID               string          `json:"id"`
	Asset            string          `json:"asset"`
	Collateral       decimal.Decimal `json:"collateral"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	Leverage         int             `json:"leverage"`
	Size             decimal.Decimal `json:"size"`
	IsLong           bool            `json:"is_long"`
	OpenedAt         time.Time       `json:"opened_at"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	PnL              decimal.Decimal `json:"pnl"`
	PnLPercent       decimal.Decimal `json:"pnl_percent"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
}

func toPositionResponse(v services.PositionView) positionResponse {
	return positionResponse{
		ID:               v.ID,
		Asset:            v.Asset,
		Collateral:       v.Collateral,
		EntryPrice:       v.EntryPrice,
		Leverage:         v.Leverage,
		Size:             v.Size,
		IsLong:           v.IsLong,
		OpenedAt:         v.Timestamp,
		CurrentPrice:     v.CurrentPrice,
		PnL:              v.PnL,
		PnLPercent:       v.PnLPercent,
		LiquidationPrice: v.LiquidationPrice,
	}
}

type accountResponse struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Pending map[string]bool `json:"pending"` // intent kind -> in flight
}

type poolResponse struct {
	TotalLiquidity     decimal.Decimal `json:"total_liquidity"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
	UserShares         decimal.Decimal `json:"user_shares"`
	UserValue          decimal.Decimal `json:"user_value"`
}

type stepResponse struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error,omitempty"`
}

type intentResponse struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	State     string         `json:"state"`
	Steps     []stepResponse `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func toIntentResponse(in *domain.PendingIntent) intentResponse {
	steps := make([]stepResponse, len(in.Steps))
	for i, st := range in.Steps {
		steps[i] = stepResponse{
			Name:   st.Name,
			State:  string(st.State),
			TxHash: st.TxHash,
			Error:  st.Err,
		}
	}
	return intentResponse{
		ID:        in.ID,
		Kind:      string(in.Kind),
		State:     string(in.State),
		Steps:     steps,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
}

type openPositionRequest struct {
	Asset      string          `json:"asset" binding:"required"`
	Leverage   int             `json:"leverage" binding:"required"`
	IsLong     *bool           `json:"is_long" binding:"required"`
	Collateral decimal.Decimal `json:"collateral" binding:"required"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type errorResponse struct {
	Error string `json:"error"`
}
