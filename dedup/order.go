package dedup

import (
	"math/rand"
	"sort"
	"time"

	"github.com/viant/corpusdedup/corpus"
)

// Order fixes the processing order of documents. The first of a group of
// near-duplicates in this order is the one kept, so the survivor depends on
// it. The zero Order sorts by source id.
type Order struct {
	name         string
	reproducible bool
	arrange      func([]corpus.TextRecord)
}

// SortedOrder processes documents by ascending source id.
func SortedOrder() Order {
	return Order{name: "sorted", reproducible: true, arrange: sortBySource}
}

// ShuffledOrder processes documents in a random order fixed by seed.
func ShuffledOrder(seed int64) Order {
	return Order{name: "shuffled", reproducible: true, arrange: func(records []corpus.TextRecord) {
		sortBySource(records)
		shuffle(rand.New(rand.NewSource(seed)), records)
	}}
}

// RandomOrder shuffles with a time based seed. Survivors differ from run
// to run.
func RandomOrder() Order {
	return Order{name: "random", arrange: func(records []corpus.TextRecord) {
		shuffle(rand.New(rand.NewSource(time.Now().UnixNano())), records)
	}}
}

// Name describes the order.
func (o Order) Name() string {
	if o.arrange == nil {
		return "sorted"
	}
	return o.name
}

// Reproducible reports whether two runs over the same input process it in
// the same order.
func (o Order) Reproducible() bool { return o.arrange == nil || o.reproducible }

// Apply arranges records in place.
func (o Order) Apply(records []corpus.TextRecord) {
	if o.arrange == nil {
		sortBySource(records)
		return
	}
	o.arrange(records)
}

func sortBySource(records []corpus.TextRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].SourceID < records[j].SourceID })
}

func shuffle(rng *rand.Rand, records []corpus.TextRecord) {
	rng.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
}
