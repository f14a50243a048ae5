package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"
	CodeServiceTimeout     Code = "SERVICE_TIMEOUT"
	CodeInternalError      Code = "INTERNAL_ERROR"
	CodeUnknownError       Code = "UNKNOWN_ERROR"
)

// On-chain / RPC error codes
const (
	CodeRPCConnectionFailed Code = "RPC_CONNECTION_FAILED"
	CodeContractCallFailed  Code = "CONTRACT_CALL_FAILED"
	CodeGasEstimationFailed Code = "GAS_ESTIMATION_FAILED"
)

// Quote failure classification. Downstream diagnostics rely on these to tell
// a misconfigured venue apart from a flaky one.
const (
	CodePoolNotFound          Code = "POOL_NOT_FOUND"
	CodeQuoteReverted         Code = "QUOTE_REVERTED"
	CodeQuoteTimeout          Code = "QUOTE_TIMEOUT"
	CodeConfigMissing         Code = "CONFIG_MISSING"
	CodePairDisabled          Code = "PAIR_DISABLED"
	CodeInsufficientLiquidity Code = "INSUFFICIENT_LIQUIDITY"
	CodeZeroOutput            Code = "ZERO_OUTPUT"
)

// Valuation and persistence error codes
const (
	CodePriceUnavailable Code = "PRICE_UNAVAILABLE"
	CodeStoreFailure     Code = "STORE_FAILURE"
)
