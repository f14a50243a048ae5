package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:       "Invalid input provided",
	CodeInvalidState:       "Invalid state for this operation",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",
	CodeServiceTimeout:     "Service request timeout",
	CodeInternalError:      "Internal error",
	CodeUnknownError:       "An unknown error occurred",

	CodeRPCConnectionFailed: "Failed to connect to RPC node",
	CodeContractCallFailed:  "Smart contract call failed",
	CodeGasEstimationFailed: "Gas estimation failed",

	CodePoolNotFound:          "No pool found for token pair",
	CodeQuoteReverted:         "Quote call reverted or liquidity insufficient",
	CodeQuoteTimeout:          "Quote timed out",
	CodeConfigMissing:         "Required venue configuration is missing",
	CodePairDisabled:          "Pair disabled after consecutive failures",
	CodeInsufficientLiquidity: "Insufficient liquidity for trade size",
	CodeZeroOutput:            "Quote produced zero output",

	CodePriceUnavailable: "No USD price could be established",
	CodeStoreFailure:     "Persistence operation failed",
}
