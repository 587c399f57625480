package pg

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dutchx/reconciler-svc/internal/data"
)

// Secondary index naming follows the store convention
// {compoundKeyName}-{sortFieldName}-all, where compoundKeyName is the
// underscore-joined concatenation of the filter fields the index serves and
// the sort field defaults to the creation timestamp. Query planning is a
// lookup over this closed set, keyed by the normalized filter-key set.

const defaultSortField = "createdAt"

type index struct {
	// compound is the compoundKeyName part, e.g. "chainId_orderStatus".
	compound string
	// fields are the filter fields served, in compound order.
	fields []string
}

func (ix index) name() string {
	return ix.compound + "-" + defaultSortField + "-all"
}

// keyFields is the full key set a cursor for this index may carry.
func (ix index) keyFields() []string {
	return append(append([]string{}, ix.fields...), defaultSortField, "orderHash")
}

// column is the table column backing the compound key.
func (ix index) column() string {
	return toSnake(ix.compound)
}

func newIndex(fields ...string) index {
	return index{compound: strings.Join(fields, "_"), fields: fields}
}

// supportedIndexes is the closed enumeration of filter-key combinations the
// repository can serve, keyed by the normalized (sorted, "+"-joined) key set.
var supportedIndexes = func() map[string]index {
	all := []index{
		newIndex("offerer"),
		newIndex("orderStatus"),
		newIndex("filler"),
		newIndex("chainId"),
		newIndex("offerer_orderStatus"),
		newIndex("filler_orderStatus"),
		newIndex("filler_offerer"),
		newIndex("chainId_filler"),
		newIndex("chainId_orderStatus"),
		newIndex("chainId_orderStatus_filler"),
		newIndex("filler_offerer_orderStatus"),
	}
	m := make(map[string]index, len(all))
	for _, ix := range all {
		m[normalizeKeySet(ix.fields)] = ix
	}
	return m
}()

func normalizeKeySet(fields []string) string {
	s := append([]string{}, fields...)
	sort.Strings(s)
	return strings.Join(s, "+")
}

// filterFields returns the names and values of the present filter fields.
func filterFields(f data.OrderFilters) map[string]string {
	m := make(map[string]string, 4)
	if f.OrderStatus != nil {
		m["orderStatus"] = string(*f.OrderStatus)
	}
	if f.ChainID != nil {
		m["chainId"] = strconv.FormatUint(*f.ChainID, 10)
	}
	if f.Offerer != nil {
		m["offerer"] = *f.Offerer
	}
	if f.Filler != nil {
		m["filler"] = *f.Filler
	}
	return m
}

// selectIndex picks the secondary index exactly matching the supplied filter
// key set, or fails with data.ErrUnsupportedQuery.
func selectIndex(f data.OrderFilters) (index, error) {
	present := filterFields(f)
	if len(present) == 0 {
		return index{}, data.ErrUnsupportedQuery
	}
	keys := make([]string, 0, len(present))
	for k := range present {
		keys = append(keys, k)
	}
	ix, ok := supportedIndexes[normalizeKeySet(keys)]
	if !ok {
		return index{}, data.ErrUnsupportedQuery
	}
	return ix, nil
}

// compoundValue joins the filter values in the index's compound field order,
// mirroring how the denormalized compound columns are written.
func compoundValue(ix index, f data.OrderFilters) string {
	present := filterFields(f)
	parts := make([]string, 0, len(ix.fields))
	for _, field := range ix.fields {
		parts = append(parts, present[field])
	}
	return strings.Join(parts, "_")
}

func toSnake(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
