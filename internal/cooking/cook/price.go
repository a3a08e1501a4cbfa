package cook

import "github.com/rsned/cookdb/pkg/cooking"

// price sums the ingredient prices and applies the count multiplier.
func (r *Resolver) price(d *dish) uint32 {
	var buy, sell uint32
	for _, g := range d.groups[:d.n] {
		if r.cat.IsLowPrice(g) {
			buy++
			sell++
			continue
		}
		buy += g.BuyPrice
		sell += g.SellPrice
	}
	return sellPrice(sell, buy, r.cat.Multiplier(d.n))
}

// sellPrice applies the multiplier in single precision and truncates, then
// rounds up to a multiple of ten. The result never exceeds buy and is at least 2.
func sellPrice(sell, buy uint32, mult float32) uint32 {
	scaled := float32(sell) * mult
	p := uint32(scaled)
	if p%10 != 0 {
		p += 10 - p%10
	}
	if buy < p {
		p = buy
	}
	if p < 3 {
		p = cooking.MinPrice
	}
	return p
}
