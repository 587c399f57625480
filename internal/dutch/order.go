// Package dutch carries the decoded representation of Dutch-auction style
// orders and the decay-curve math. Order encoding, hashing and signature
// recovery are owned by the order SDK behind the Codec boundary.
package dutch

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/data"
)

// NativeToken marks a chain-native (non ERC-20) leg. Native transfers emit no
// token transfer logs, which is what makes them special for settlement.
var NativeToken = common.Address{}

func IsNative(token common.Address) bool {
	return token == NativeToken
}

type Input struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
}

type Output struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
	Recipient   common.Address
}

// Order is a decoded, signed trade order.
type Order struct {
	Hash            common.Hash
	ChainID         uint64
	Offerer         common.Address
	Nonce           *big.Int
	Deadline        uint64
	DecayStartTime  uint64
	DecayEndTime    uint64
	ExclusiveFiller common.Address
	Input           Input
	Outputs         []Output
}

// ExactInput reports whether the input amount is fixed and the outputs decay.
// The alternative regime fixes the outputs and decays the input.
func (o *Order) ExactInput() bool {
	return o.Input.StartAmount.Cmp(o.Input.EndAmount) == 0
}

// Codec decodes the SDK-encoded order blob into its typed form.
type Codec interface {
	Parse(encoded string, chainID uint64) (*Order, error)
}

// FromRecord rebuilds a decoded order from the repository's denormalized
// curve fields, avoiding a round trip through the encoded blob.
func FromRecord(o data.Order) (*Order, error) {
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return nil, errors.New("order nonce is not a decimal integer")
	}

	input, err := parseInput(o.Input)
	if err != nil {
		return nil, err
	}

	outputs := make([]Output, 0, len(o.Outputs))
	for i, out := range o.Outputs {
		parsed, err := parseOutput(out)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse order output", logan.F{"output": i})
		}
		outputs = append(outputs, parsed)
	}

	return &Order{
		Hash:           common.HexToHash(o.OrderHash),
		ChainID:        o.ChainID,
		Offerer:        common.HexToAddress(o.Offerer),
		Nonce:          nonce,
		Deadline:       o.Deadline,
		DecayStartTime: o.DecayStartTime,
		DecayEndTime:   o.DecayEndTime,
		Input:          input,
		Outputs:        outputs,
	}, nil
}

func parseInput(in data.Input) (Input, error) {
	start, ok := new(big.Int).SetString(in.StartAmount, 10)
	if !ok {
		return Input{}, errors.New("input start amount is not a decimal integer")
	}
	end, ok := new(big.Int).SetString(in.EndAmount, 10)
	if !ok {
		return Input{}, errors.New("input end amount is not a decimal integer")
	}
	return Input{Token: common.HexToAddress(in.Token), StartAmount: start, EndAmount: end}, nil
}

func parseOutput(out data.Output) (Output, error) {
	start, ok := new(big.Int).SetString(out.StartAmount, 10)
	if !ok {
		return Output{}, errors.New("output start amount is not a decimal integer")
	}
	end, ok := new(big.Int).SetString(out.EndAmount, 10)
	if !ok {
		return Output{}, errors.New("output end amount is not a decimal integer")
	}
	return Output{
		Token:       common.HexToAddress(out.Token),
		StartAmount: start,
		EndAmount:   end,
		Recipient:   common.HexToAddress(out.Recipient),
	}, nil
}
