package book

import "orderbook_go/internal/domain"

// ParseLevels converts wire tuples into price levels.
// Order is preserved; nothing is filtered or merged.
func ParseLevels(tuples []domain.LevelTuple) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, len(tuples))
	for i, t := range tuples {
		levels[i] = domain.PriceLevel{
			Price:  t.Price,
			Volume: t.Volume,
			Orders: t.Orders,
		}
	}
	return levels
}
