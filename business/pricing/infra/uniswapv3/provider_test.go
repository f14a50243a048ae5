package uniswapv3

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/dvega/spreadscan/business/pricing/app"
	"github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/logger"
)

// fakeCaller routes eth_call payloads to a test-provided handler.
type fakeCaller struct {
	mu    sync.Mutex
	calls int
	fn    func(to common.Address, data []byte) ([]byte, error)
}

func (f *fakeCaller) CallContract(_ context.Context, to common.Address, data []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(to, data)
}

func (f *fakeCaller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func quoterABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}
	return parsed
}

// packSingleResult encodes a quoteExactInputSingle return payload.
func packSingleResult(t *testing.T, parsed abi.ABI, amountOut *big.Int) []byte {
	t.Helper()
	out, err := parsed.Methods["quoteExactInputSingle"].Outputs.Pack(
		amountOut, big.NewInt(0), uint32(1), big.NewInt(80000),
	)
	if err != nil {
		t.Fatalf("pack outputs: %v", err)
	}
	return out
}

// feeFromCalldata extracts the fee word from a quoteExactInputSingle call.
// Layout: 4-byte selector, then tokenIn, tokenOut, amountIn, fee as words.
func feeFromCalldata(data []byte) int64 {
	return new(big.Int).SetBytes(data[4+96 : 4+128]).Int64()
}

func newTestProvider(t *testing.T, caller app.ContractCaller, cfg config.UniswapV3Config) (*Provider, *app.FailureTracker) {
	t.Helper()
	if cfg.QuoterAddress == "" {
		cfg.QuoterAddress = "0x61fFE014bA17989E743c5F6cB21bF9697530B21e"
	}
	resolver := domain.NewResolver(asset.DefaultRegistry())
	failures := app.NewFailureTracker(3)

	p, err := NewProvider(caller, cfg, resolver, failures, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	return p, failures
}

func TestQuotePicksHighestOutputTier(t *testing.T) {
	parsed := quoterABI(t)

	// The 500 tier pays better than the 3000 tier.
	caller := &fakeCaller{fn: func(_ common.Address, data []byte) ([]byte, error) {
		if feeFromCalldata(data) == FeeTier005 {
			return packSingleResult(t, parsed, big.NewInt(2_000_000)), nil
		}
		return packSingleResult(t, parsed, big.NewInt(1_900_000)), nil
	}}

	p, _ := newTestProvider(t, caller, config.UniswapV3Config{
		FeeTiers:    []int64{FeeTier005, FeeTier030},
		MaxInFlight: 2,
	})

	quote := p.Quote(context.Background(), asset.AddrWETH, asset.AddrUSDCNative, big.NewInt(1e18))

	if !quote.Success {
		t.Fatalf("quote failed: %s %s", quote.FailCode, quote.Reason)
	}
	if quote.AmountOut.Int64() != 2_000_000 {
		t.Errorf("amount out = %s, want 2000000", quote.AmountOut)
	}
	if len(quote.Route.FeeTiers) != 1 || quote.Route.FeeTiers[0] != FeeTier005 {
		t.Errorf("fee tiers = %v, want [500]", quote.Route.FeeTiers)
	}
	if caller.callCount() != 2 {
		t.Errorf("caller invoked %d times, want 2", caller.callCount())
	}
}

func TestQuoteZeroOutputIsFailure(t *testing.T) {
	parsed := quoterABI(t)
	caller := &fakeCaller{fn: func(_ common.Address, _ []byte) ([]byte, error) {
		return packSingleResult(t, parsed, big.NewInt(0)), nil
	}}

	p, _ := newTestProvider(t, caller, config.UniswapV3Config{
		FeeTiers: []int64{FeeTier005},
	})

	quote := p.Quote(context.Background(), asset.AddrWETH, asset.AddrUSDCNative, big.NewInt(1e18))

	if quote.Success {
		t.Fatal("zero-output quote reported success")
	}
	if quote.FailCode != apperror.CodeZeroOutput {
		t.Errorf("fail code = %s, want %s", quote.FailCode, apperror.CodeZeroOutput)
	}
}

func TestQuoteRevertsClassifiedAsNoPool(t *testing.T) {
	caller := &fakeCaller{fn: func(_ common.Address, _ []byte) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}

	p, _ := newTestProvider(t, caller, config.UniswapV3Config{
		FeeTiers: []int64{FeeTier005, FeeTier030},
	})

	quote := p.Quote(context.Background(), asset.AddrARB, asset.AddrDAI, big.NewInt(1e18))

	if quote.Success {
		t.Fatal("reverted quote reported success")
	}
	if quote.FailCode != apperror.CodePoolNotFound {
		t.Errorf("fail code = %s, want %s", quote.FailCode, apperror.CodePoolNotFound)
	}
}

func TestQuoteDisabledPairShortCircuits(t *testing.T) {
	caller := &fakeCaller{fn: func(_ common.Address, _ []byte) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}

	p, failures := newTestProvider(t, caller, config.UniswapV3Config{
		FeeTiers: []int64{FeeTier005},
	})

	// Threshold is 3 in the test fixture; each failing quote adds one.
	for i := 0; i < 3; i++ {
		p.Quote(context.Background(), asset.AddrARB, asset.AddrDAI, big.NewInt(1e18))
	}
	if !failures.Disabled(asset.AddrARB, asset.AddrDAI) {
		t.Fatal("pair not disabled after consecutive failures")
	}

	before := caller.callCount()
	quote := p.Quote(context.Background(), asset.AddrARB, asset.AddrDAI, big.NewInt(1e18))

	if quote.FailCode != apperror.CodePairDisabled {
		t.Errorf("fail code = %s, want %s", quote.FailCode, apperror.CodePairDisabled)
	}
	if caller.callCount() != before {
		t.Errorf("disabled pair still hit the caller")
	}
}

func TestQuoteEnumeratesTwoHopRoutes(t *testing.T) {
	parsed := quoterABI(t)

	var multiHopCalls int
	caller := &fakeCaller{fn: func(_ common.Address, data []byte) ([]byte, error) {
		method, err := parsed.MethodById(data[:4])
		if err != nil {
			return nil, err
		}
		if method.Name == "quoteExactInput" {
			multiHopCalls++
			out, err := method.Outputs.Pack(
				big.NewInt(3_000_000), []*big.Int{big.NewInt(0), big.NewInt(0)},
				[]uint32{1, 1}, big.NewInt(160000),
			)
			if err != nil {
				return nil, err
			}
			return out, nil
		}
		return packSingleResult(t, parsed, big.NewInt(1_000_000)), nil
	}}

	// Serial workers keep the multiHopCalls counter race-free.
	p, _ := newTestProvider(t, caller, config.UniswapV3Config{
		FeeTiers:      []int64{FeeTier005},
		Intermediates: []string{"WETH"},
		MaxInFlight:   1,
	})

	quote := p.Quote(context.Background(), asset.AddrARB, asset.AddrUSDCNative, big.NewInt(1e18))

	if !quote.Success {
		t.Fatalf("quote failed: %s %s", quote.FailCode, quote.Reason)
	}
	if multiHopCalls == 0 {
		t.Fatal("no two-hop route was tried")
	}
	// The two-hop route paid 3x the direct pool and must win.
	if quote.AmountOut.Int64() != 3_000_000 {
		t.Errorf("amount out = %s, want 3000000", quote.AmountOut)
	}
	if len(quote.Route.FeeTiers) != 2 {
		t.Errorf("fee tiers = %v, want two entries", quote.Route.FeeTiers)
	}
}
