package zerodha

import (
	"context"
	"errors"
	"strings"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"b5-trader/internal/interfaces"
	"b5-trader/internal/market"
	"b5-trader/internal/types"
)

// Params configures the live Kite Connect order adapter.
type Params struct {
	APIKey      string
	AccessToken string
}

// Zerodha places real market orders through Kite Connect. It is only
// constructed when live trading is explicitly armed; paper mode uses the
// noop broker.
type Zerodha struct {
	p    Params
	kite *kiteconnect.Client
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params) *Zerodha {
	z := &Zerodha{p: p}
	if p.APIKey != "" {
		z.kite = kiteconnect.New(p.APIKey)
		if p.AccessToken != "" {
			z.kite.SetAccessToken(p.AccessToken)
		}
	}
	return z
}

// product maps the instrument class to the Kite product type: intraday for
// equity and index trades, carry-forward for derivatives and commodities.
func product(instrumentType string) string {
	switch instrumentType {
	case market.InstrumentOption, market.InstrumentFuture, market.InstrumentCommodity:
		return kiteconnect.ProductNRML
	default:
		return kiteconnect.ProductMIS
	}
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if z.kite == nil {
		return types.OrderResp{}, errors.New("missing API key/access token")
	}

	side := kiteconnect.TransactionTypeBuy
	if strings.EqualFold(req.Side, "SELL") {
		side = kiteconnect.TransactionTypeSell
	}

	resp, err := z.kite.PlaceOrder(kiteconnect.VarietyRegular, kiteconnect.OrderParams{
		Exchange:        req.Exchange,
		Tradingsymbol:   req.Tsym,
		TransactionType: side,
		OrderType:       kiteconnect.OrderTypeMarket,
		Product:         product(req.InstrumentType),
		Validity:        kiteconnect.ValidityDay,
		Quantity:        req.Qty,
		Tag:             req.Tag,
	})
	if err != nil {
		return types.OrderResp{}, err
	}

	return types.OrderResp{
		OrderID: resp.OrderID,
		Status:  "PLACED",
		Message: "ok",
	}, nil
}
