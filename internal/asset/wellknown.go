package asset

import "github.com/ethereum/go-ethereum/common"

// ChainIDArbitrum is the rollup the default token set lives on.
const ChainIDArbitrum = 42161

// Well-known token addresses on Arbitrum One.
var (
	AddrWETH        = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	AddrUSDCNative  = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	AddrUSDCBridged = common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	AddrUSDT        = common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9")
	AddrARB         = common.HexToAddress("0x912CE59144191C1204E64559FE8253a0e49E6548")
	AddrDAI         = common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1")
)

// Well-known tokens. USDC is the multi-variant asset: the natively issued
// contract is primary, the bridged wrapper secondary. There is no fungibility
// between the two on chain.
var (
	WETH = NewToken("WETH", 18, false, Variant{Address: AddrWETH, Label: "WETH"})
	USDC = NewToken("USDC", 6, true,
		Variant{Address: AddrUSDCNative, Label: "USDC"},
		Variant{Address: AddrUSDCBridged, Label: "USDC.e"},
	)
	USDT = NewToken("USDT", 6, true, Variant{Address: AddrUSDT, Label: "USDT"})
	ARB  = NewToken("ARB", 18, false, Variant{Address: AddrARB, Label: "ARB"})
	DAI  = NewToken("DAI", 18, true, Variant{Address: AddrDAI, Label: "DAI"})
)

// DefaultRegistry returns a registry pre-populated with the well-known set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(WETH)
	r.Register(USDC)
	r.Register(USDT)
	r.Register(ARB)
	r.Register(DAI)
	return r
}
