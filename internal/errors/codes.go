package errors

// Error codes for the strata toolchain.
// These codes are used in diagnostics and documentation
// to provide consistent error identification across the CLI and the language server.
//
// Error code ranges:
// E0100-E0199: Textual IR parse errors
// E0700-E0799: Globalization and lowering failures
// E0900-E0999: Reserved for tooling errors

// Kind tags a diagnostic with the failure class of the phase that produced it
type Kind string

const (
	KindParse                   Kind = "ParseError"
	KindStructuralViolation     Kind = "StructuralViolation"
	KindMonomorphizationFailure Kind = "MonomorphizationFailure"
	KindAliasViolation          Kind = "AliasViolation"
	KindConvergenceFailure      Kind = "ConvergenceFailure"
	KindMalformedInput          Kind = "MalformedInputFailure"
	KindContractViolation       Kind = "ContractViolation"
	KindInvalidConfiguration    Kind = "InvalidConfiguration"
)

const (
	// E0100: Textual IR could not be parsed
	ErrorParse = "E0100"

	// E0700: Instance graph is not a tree with a single root
	ErrorStructuralViolation = "E0700"

	// E0701: Instance-typed value has no single static binding
	ErrorMonomorphizationFailure = "E0701"

	// E0702: Two slots share non-primitive storage
	ErrorAliasViolation = "E0702"

	// E0703: Backend contract not reached within the iteration budget
	ErrorConvergenceFailure = "E0703"

	// E0704: Input violates a structural precondition of a pass
	ErrorMalformedInput = "E0704"

	// E0705: Module does not satisfy the backend contract
	ErrorContractViolation = "E0705"

	// E0900: Configuration or pipeline description is invalid
	ErrorInvalidConfiguration = "E0900"
)

// CodeFor returns the error code of a diagnostic kind
func CodeFor(kind Kind) string {
	switch kind {
	case KindParse:
		return ErrorParse
	case KindStructuralViolation:
		return ErrorStructuralViolation
	case KindMonomorphizationFailure:
		return ErrorMonomorphizationFailure
	case KindAliasViolation:
		return ErrorAliasViolation
	case KindConvergenceFailure:
		return ErrorConvergenceFailure
	case KindMalformedInput:
		return ErrorMalformedInput
	case KindContractViolation:
		return ErrorContractViolation
	case KindInvalidConfiguration:
		return ErrorInvalidConfiguration
	default:
		return ""
	}
}

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorParse:
		return "Textual IR is not well formed"
	case ErrorStructuralViolation:
		return "Instance graph must have exactly one root and reach every instance by exactly one path"
	case ErrorMonomorphizationFailure:
		return "Instance-typed value cannot be resolved to a single static instance"
	case ErrorAliasViolation:
		return "Two slots with non-primitive initial values share the same storage"
	case ErrorConvergenceFailure:
		return "Lowering did not satisfy the backend contract within the iteration budget"
	case ErrorMalformedInput:
		return "Module violates a precondition of the pass"
	case ErrorContractViolation:
		return "Module does not satisfy the backend contract"
	case ErrorInvalidConfiguration:
		return "Configuration or pass pipeline is invalid"
	default:
		return "Unknown error code"
	}
}

// GetErrorCategory returns the category of the error based on its code
func GetErrorCategory(code string) string {
	switch {
	case code >= "E0100" && code < "E0200":
		return "Parser"
	case code >= "E0700" && code < "E0703":
		return "Globalization"
	case code >= "E0703" && code < "E0800":
		return "Lowering"
	case code >= "E0900" && code < "E1000":
		return "Tooling"
	default:
		return "Unknown"
	}
}
