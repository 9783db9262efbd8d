package source

import (
	"hash/fnv"

	"github.com/resellkit/pricescope/internal/model"
)

// basePrices is the ladder synthetic prices are drawn from; the hash picks
// a rung so the same query always lands on the same price.
var basePrices = []int{4980, 7980, 12800, 19800, 29800, 49800, 59800, 79800}

// Placeholder builds the terminal fallback record returned when every real
// resolution step failed. It is deterministic per query, clearly marked
// unavailable, and points at the marketplace's search page so the caller
// still gets a working link.
func Placeholder(query string, src model.Source, searchURL string, floors *Floors) model.ProductRecord {
	h := fnv.New32a()
	_, _ = h.Write([]byte(query))
	sum := h.Sum32()

	price := basePrices[int(sum)%len(basePrices)]
	// ±5000 yen of hash-derived variation, stepped in hundreds.
	price += (int(sum>>8)%100 - 50) * 100

	if floors != nil {
		if floor := floors.For(query); price < floor {
			price = floor
		}
	}

	rec := model.ProductRecord{
		Source:       src,
		Title:        model.SynthesizeTitle(query, src),
		Price:        price,
		URL:          searchURL,
		ShopName:     src.DisplayName(),
		Availability: false,
		Placeholder:  true,
	}
	rec.SetExtra("fallback", "all resolution steps exhausted")
	return rec
}
