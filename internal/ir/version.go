package ir

// Version constants saved with the contract state at instantiation.
const (
	// ContractName is the name recorded in ContractVersion.
	ContractName = "poolproxy"

	// ContractVersionString is the version recorded in ContractVersion.
	ContractVersionString = "0.1.0"
)

// CurrentVersion returns the ContractVersion of this build.
func CurrentVersion() ContractVersion {
	return ContractVersion{Contract: ContractName, Version: ContractVersionString}
}
