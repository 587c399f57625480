package dutch

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/dutchx/reconciler-svc/internal/data"
)

func decayOrder() *Order {
	return &Order{
		Nonce:          big.NewInt(7),
		DecayStartTime: 1000,
		DecayEndTime:   2000,
		Input: Input{
			Token:       common.HexToAddress("0x01"),
			StartAmount: big.NewInt(1000),
			EndAmount:   big.NewInt(1000),
		},
		Outputs: []Output{{
			Token:       common.HexToAddress("0x02"),
			StartAmount: big.NewInt(200),
			EndAmount:   big.NewInt(100),
			Recipient:   common.HexToAddress("0x03"),
		}},
	}
}

func TestResolveClampsAtBounds(t *testing.T) {
	o := decayOrder()
	anyone := common.HexToAddress("0xff")

	before := o.Resolve(500, anyone)
	assert.Zero(t, before.Outputs[0].Amount.Cmp(big.NewInt(200)))

	after := o.Resolve(3000, anyone)
	assert.Zero(t, after.Outputs[0].Amount.Cmp(big.NewInt(100)))
}

func TestResolveInterpolatesLinearly(t *testing.T) {
	o := decayOrder()

	mid := o.Resolve(1500, common.HexToAddress("0xff"))
	assert.Zero(t, mid.Outputs[0].Amount.Cmp(big.NewInt(150)))

	quarter := o.Resolve(1250, common.HexToAddress("0xff"))
	assert.Zero(t, quarter.Outputs[0].Amount.Cmp(big.NewInt(175)))
}

func TestResolveZeroDurationDecay(t *testing.T) {
	o := decayOrder()
	o.DecayEndTime = o.DecayStartTime

	// Once the decay moment passes, the end amount wins.
	after := o.Resolve(5000, common.HexToAddress("0xff"))
	assert.Zero(t, after.Outputs[0].Amount.Cmp(big.NewInt(100)))

	at := o.Resolve(o.DecayStartTime, common.HexToAddress("0xff"))
	assert.Zero(t, at.Outputs[0].Amount.Cmp(big.NewInt(100)))

	before := o.Resolve(500, common.HexToAddress("0xff"))
	assert.Zero(t, before.Outputs[0].Amount.Cmp(big.NewInt(200)))
}

func TestExactInput(t *testing.T) {
	o := decayOrder()
	assert.True(t, o.ExactInput())

	o.Input.EndAmount = big.NewInt(1200)
	assert.False(t, o.ExactInput())
}

func TestFromRecordRejectsBadAmounts(t *testing.T) {
	_, err := FromRecord(orderRecord("not-a-number"))
	assert.Error(t, err)

	parsed, err := FromRecord(orderRecord("123456789012345678901234567890"))
	assert.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", parsed.Input.StartAmount.String())
}

func orderRecord(startAmount string) data.Order {
	return data.Order{
		OrderHash:      "0xaa11",
		ChainID:        1,
		Offerer:        "0x0000000000000000000000000000000000000001",
		Nonce:          "42",
		Deadline:       2000,
		DecayStartTime: 1000,
		DecayEndTime:   2000,
		Input: data.Input{
			Token:       "0x0000000000000000000000000000000000000002",
			StartAmount: startAmount,
			EndAmount:   "100",
		},
		Outputs: []data.Output{{
			Token:       "0x0000000000000000000000000000000000000003",
			StartAmount: "200",
			EndAmount:   "100",
			Recipient:   "0x0000000000000000000000000000000000000004",
		}},
	}
}
