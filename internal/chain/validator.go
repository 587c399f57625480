package chain

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"gitlab.com/distributed_lab/logan/v3/errors"

	"github.com/dutchx/reconciler-svc/internal/data"
)

// Validator classifies an order's current redeemability on chain.
type Validator interface {
	Validate(ctx context.Context, order data.Order) (Verdict, error)
}

const quoterABI = `[{"inputs":[{"internalType":"bytes","name":"order","type":"bytes"},{"internalType":"bytes","name":"sig","type":"bytes"}],"name":"quote","outputs":[{"internalType":"bytes","name":"result","type":"bytes"}],"stateMutability":"nonpayable","type":"function"}]`

// revertVerdicts maps the quoter's revert reasons to verdicts. Anything not
// listed is an unknown error.
var revertVerdicts = []struct {
	marker  string
	verdict Verdict
}{
	{"InvalidNonce", VerdictNonceUsed},
	{"DeadlinePassed", VerdictExpired},
	{"EndTimeBeforeStartTime", VerdictInvalidOrderFields},
	{"InvalidReactor", VerdictInvalidOrderFields},
	{"InvalidOrderFields", VerdictInvalidOrderFields},
	{"InvalidSigner", VerdictInvalidSignature},
	{"InvalidSignature", VerdictInvalidSignature},
	{"TRANSFER_FROM_FAILED", VerdictInsufficientFunds},
	{"InsufficientFunds", VerdictInsufficientFunds},
	{"insufficient allowance", VerdictInsufficientFunds},
	{"insufficient balance", VerdictInsufficientFunds},
}

// quoterValidator probes fill-ability with an eth_call against the quoting
// contract. A clean return is an OK verdict; reverts are classified by their
// reason.
type quoterValidator struct {
	eth            *ethclient.Client
	quoter         common.Address
	quoterAbi      abi.ABI
	requestTimeout time.Duration
}

func NewQuoterValidator(eth *ethclient.Client, quoter common.Address, requestTimeout time.Duration) (Validator, error) {
	parsed, err := abi.JSON(strings.NewReader(quoterABI))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse quoter ABI")
	}
	return &quoterValidator{
		eth:            eth,
		quoter:         quoter,
		quoterAbi:      parsed,
		requestTimeout: requestTimeout,
	}, nil
}

func (v *quoterValidator) Validate(ctx context.Context, order data.Order) (Verdict, error) {
	encoded, err := hexutil.Decode(order.EncodedOrder)
	if err != nil {
		return VerdictInvalidOrderFields, nil
	}
	sig, err := hexutil.Decode(order.Signature)
	if err != nil {
		return VerdictInvalidSignature, nil
	}

	input, err := v.quoterAbi.Pack("quote", encoded, sig)
	if err != nil {
		return VerdictUnknownError, errors.Wrap(err, "failed to pack quote calldata")
	}

	child, cancel := context.WithTimeout(ctx, v.requestTimeout)
	defer cancel()

	_, err = v.eth.CallContract(child, ethereum.CallMsg{To: &v.quoter, Data: input}, nil)
	if err == nil {
		return VerdictOK, nil
	}

	verdict := classifyRevert(err.Error())
	if verdict == VerdictUnknownError && !strings.Contains(err.Error(), "execution reverted") {
		// Transport failure, not a chain answer.
		return VerdictUnknownError, errors.Wrap(err, "failed to call quoter")
	}
	return verdict, nil
}

func classifyRevert(reason string) Verdict {
	for _, rv := range revertVerdicts {
		if strings.Contains(reason, rv.marker) {
			return rv.verdict
		}
	}
	return VerdictUnknownError
}
