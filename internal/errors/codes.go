package errors

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeConfigValidation Code = "CONFIG_VALIDATION_ERROR"
	CodeConfigReadError  Code = "CONFIG_READ_ERROR"
	CodeConfigParseError Code = "CONFIG_PARSE_ERROR"

	// Datasource probing
	CodeDetectionFailure  Code = "DETECTION_FAILURE"
	CodeFetchTimeout      Code = "FETCH_TIMEOUT"
	CodeFetchError        Code = "FETCH_ERROR"
	CodeNoDatasourceFound Code = "NO_DATASOURCE_FOUND"

	// Module execution
	CodeModuleRecoverable Code = "MODULE_RECOVERABLE_FAILURE"
	CodeModuleFatal       Code = "MODULE_FATAL_FAILURE"
	CodeModuleNotFound    Code = "MODULE_APPLIER_NOT_FOUND"
	CodeDependencyCycle   Code = "MODULE_DEPENDENCY_CYCLE"

	// Persistence
	CodeStorageError Code = "STORAGE_ERROR"

	// Module manifest
	CodeManifestParseError Code = "MANIFEST_PARSE_ERROR"
)

func (c Code) String() string {
	return string(c)
}
