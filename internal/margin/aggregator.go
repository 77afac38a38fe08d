package margin

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tickcore/internal/schema"
)

// Aggregator keeps the latest margin figure of each source and sums them.
type Aggregator struct {
	perSource map[string]decimal.Decimal
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{perSource: make(map[string]decimal.Decimal)}
}

// Update stores the margin of a source and returns the unified view.
func (a *Aggregator) Update(update schema.MarginUpdate) (schema.UnifiedMargin, error) {
	if update.Source == "" {
		return schema.UnifiedMargin{}, errors.New("margin source is empty")
	}
	value, err := decimal.NewFromString(update.Margin)
	if err != nil {
		return schema.UnifiedMargin{}, errors.Wrapf(err, "parse margin of %s", update.Source)
	}
	a.perSource[update.Source] = value
	return a.Snapshot(), nil
}

// Total returns the sum across sources.
func (a *Aggregator) Total() decimal.Decimal {
	total := decimal.Zero
	for _, source := range a.sources() {
		total = total.Add(a.perSource[source])
	}
	return total
}

// Snapshot returns the unified margin with decimal strings.
func (a *Aggregator) Snapshot() schema.UnifiedMargin {
	per := make(map[string]string, len(a.perSource))
	for source, value := range a.perSource {
		per[source] = value.String()
	}
	return schema.UnifiedMargin{
		Total:     a.Total().String(),
		PerSource: per,
	}
}

func (a *Aggregator) sources() []string {
	keys := make([]string, 0, len(a.perSource))
	for source := range a.perSource {
		keys = append(keys, source)
	}
	sort.Strings(keys)
	return keys
}
