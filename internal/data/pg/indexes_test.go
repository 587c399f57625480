package pg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dutchx/reconciler-svc/internal/data"
)

func ptr[T any](v T) *T { return &v }

func TestSelectIndex(t *testing.T) {
	expired := data.StatusExpired

	cases := []struct {
		name    string
		filters data.OrderFilters
		index   string
	}{
		{
			"status and chain",
			data.OrderFilters{OrderStatus: &expired, ChainID: ptr(uint64(137))},
			"chainId_orderStatus-createdAt-all",
		},
		{
			"offerer only",
			data.OrderFilters{Offerer: ptr("0xabc")},
			"offerer-createdAt-all",
		},
		{
			"offerer and status",
			data.OrderFilters{Offerer: ptr("0xabc"), OrderStatus: &expired},
			"offerer_orderStatus-createdAt-all",
		},
		{
			"chain status filler",
			data.OrderFilters{ChainID: ptr(uint64(1)), OrderStatus: &expired, Filler: ptr("0xf")},
			"chainId_orderStatus_filler-createdAt-all",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ix, err := selectIndex(tc.filters)
			require.NoError(t, err)
			assert.Equal(t, tc.index, ix.name())
		})
	}
}

func TestSelectIndexUnsupportedCombination(t *testing.T) {
	// offerer+chainId serves no configured index.
	_, err := selectIndex(data.OrderFilters{
		Offerer: ptr("0xabc"),
		ChainID: ptr(uint64(1)),
	})
	assert.ErrorIs(t, err, data.ErrUnsupportedQuery)

	_, err = selectIndex(data.OrderFilters{})
	assert.ErrorIs(t, err, data.ErrUnsupportedQuery)
}

func TestCompoundValueFollowsIndexOrder(t *testing.T) {
	expired := data.StatusExpired
	filters := data.OrderFilters{OrderStatus: &expired, ChainID: ptr(uint64(137))}

	ix, err := selectIndex(filters)
	require.NoError(t, err)

	// The compound value joins fields in the index's declared order, not the
	// filter's.
	assert.Equal(t, "137_expired", compoundValue(ix, filters))
	assert.Equal(t, "chain_id_order_status", ix.column())
}

func TestIndexColumnsRecomputedPerStatus(t *testing.T) {
	open := indexColumns(137, data.StatusOpen, "0xoff", "0xfil")
	filled := indexColumns(137, data.StatusFilled, "0xoff", "0xfil")

	assert.Equal(t, "137_open", open["chain_id_order_status"])
	assert.Equal(t, "137_filled", filled["chain_id_order_status"])
	assert.Equal(t, "0xoff_filled", filled["offerer_order_status"])
	assert.Equal(t, "0xfil_0xoff_filled", filled["filler_offerer_order_status"])
}
