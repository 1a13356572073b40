package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const aggregatorV3ABI = `[
{"type":"function","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
{"type":"function","name":"latestRoundData","inputs":[],"outputs":[
 {"name":"roundId","type":"uint80"},
 {"name":"answer","type":"int256"},
 {"name":"startedAt","type":"uint256"},
 {"name":"updatedAt","type":"uint256"},
 {"name":"answeredInRound","type":"uint80"}],"stateMutability":"view"}
]`

var (
	aggregatorOnce   sync.Once
	aggregatorParsed abi.ABI
	aggregatorErr    error
)

func aggregatorABI() (abi.ABI, error) {
	aggregatorOnce.Do(func() {
		aggregatorParsed, aggregatorErr = abi.JSON(strings.NewReader(aggregatorV3ABI))
	})
	return aggregatorParsed, aggregatorErr
}

// ContractCaller executes read-only contract calls. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// AggregatorFeed reads an AggregatorV3 price feed contract. The decimals of
// the feed are fetched once and cached.
type AggregatorFeed struct {
	caller  ContractCaller
	address common.Address

	mu       sync.Mutex
	decimals *uint8
}

// NewAggregatorFeed binds a feed to the contract deployed at address.
func NewAggregatorFeed(caller ContractCaller, address common.Address) *AggregatorFeed {
	return &AggregatorFeed{caller: caller, address: address}
}

func (f *AggregatorFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	parsed, err := aggregatorABI()
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	input, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack %s: %w", method, err)
	}
	to := f.address
	output, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: call %s on %s: %w", method, f.address.Hex(), err)
	}
	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("oracle: unpack %s: %w", method, err)
	}
	return values, nil
}

// Decimals returns the precision reported by the contract.
func (f *AggregatorFeed) Decimals(ctx context.Context) (uint8, error) {
	if f == nil || f.caller == nil {
		return 0, fmt.Errorf("oracle: aggregator feed not configured")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decimals != nil {
		return *f.decimals, nil
	}
	values, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("oracle: decimals returned %d values", len(values))
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("oracle: unexpected decimals type %T", values[0])
	}
	f.decimals = &dec
	return dec, nil
}

// LatestPrice implements Feed.
func (f *AggregatorFeed) LatestPrice(ctx context.Context) (Price, error) {
	dec, err := f.Decimals(ctx)
	if err != nil {
		return Price{}, err
	}
	values, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return Price{}, err
	}
	if len(values) != 5 {
		return Price{}, fmt.Errorf("oracle: latestRoundData returned %d values", len(values))
	}
	answer, ok := values[1].(*big.Int)
	if !ok {
		return Price{}, fmt.Errorf("oracle: unexpected answer type %T", values[1])
	}
	updatedAt, ok := values[3].(*big.Int)
	if !ok {
		return Price{}, fmt.Errorf("oracle: unexpected updatedAt type %T", values[3])
	}
	if answer.Sign() < 0 {
		return Price{}, fmt.Errorf("%w: %s", ErrNegativePrice, answer)
	}
	if answer.Sign() == 0 {
		return Price{}, ErrNoPrice
	}
	value, overflow := uint256.FromBig(answer)
	if overflow {
		return Price{}, fmt.Errorf("oracle: answer overflows 256 bits")
	}
	return Price{
		Value:     value,
		Decimals:  dec,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}
