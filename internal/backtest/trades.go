package backtest

import "factorlab/internal/domain"

// BuildTrades replays the signal stream against the primary close-price
// lookup to reconstruct the literal buy/sell ledger of a single-unit,
// fully-invested-or-fully-cash account starting with 100 cash.
//
// A BUY while already long and a SELL while already flat are ignored; the
// simulator should never emit them, but the reconstructor does not trust
// that invariant blindly. A position still open after the last point is
// force-closed with a synthetic SELL at the last available close, so the
// ledger always holds an even number of strictly alternating trades.
func BuildTrades(points []domain.SignalPoint, prices []domain.PricePoint) []domain.Trade {
	priceByDate := make(map[string]float64, len(prices))
	for _, p := range prices {
		if _, seen := priceByDate[p.Date]; !seen && p.Close > 0 {
			priceByDate[p.Date] = p.Close
		}
	}

	trades := []domain.Trade{}
	long := false
	cash := baseIndex
	holdings := 0.0

	for _, pt := range points {
		if pt.Signal == nil {
			continue
		}
		price, ok := priceByDate[pt.Date]
		if !ok {
			continue
		}

		switch *pt.Signal {
		case domain.SignalBuy:
			if long {
				continue
			}
			quantity := cash / price
			trades = append(trades, domain.Trade{
				Date:     pt.Date,
				Type:     domain.SignalBuy,
				Price:    price,
				Quantity: quantity,
				Amount:   quantity * price,
			})
			holdings = quantity
			cash = 0
			long = true
		case domain.SignalSell:
			if !long {
				continue
			}
			amount := holdings * price
			trades = append(trades, domain.Trade{
				Date:     pt.Date,
				Type:     domain.SignalSell,
				Price:    price,
				Quantity: holdings,
				Amount:   amount,
			})
			cash = amount
			holdings = 0
			long = false
		}
	}

	if long && len(points) > 0 {
		last := points[len(points)-1]
		if price, ok := priceByDate[last.Date]; ok && holdings > 0 {
			trades = append(trades, domain.Trade{
				Date:     last.Date,
				Type:     domain.SignalSell,
				Price:    price,
				Quantity: holdings,
				Amount:   holdings * price,
			})
		}
	}

	return trades
}
