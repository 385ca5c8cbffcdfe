package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// ConfigError is returned when the configuration is missing or invalid. Always raised before the engine starts.
	ConfigError = ErrorKind("Config Error")

	// SourceUnavailable is returned when the block source can't be reached. It's transient and retried by the indexer.
	SourceUnavailable = ErrorKind("Source Unavailable")

	// ConsistencyError is returned when persisted state contradicts itself, e.g. spending an outpoint that was never created.
	ConsistencyError = ErrorKind("Consistency Error")

	// DecodeError is returned when raw block or transaction bytes can't be decoded.
	DecodeError = ErrorKind("Decode Error")
)

const (
	// NotFound is returned when a requested item is not found.
	NotFound = ErrorKind("Not Found")

	// DuplicateId is returned when a record with the same id already exists.
	DuplicateId = ErrorKind("Duplicate Id")

	// InvalidArgument is returned when the argument is invalid.
	InvalidArgument = ErrorKind("Invalid Argument")

	// Unsupported is returned when a feature or option is not supported.
	Unsupported = ErrorKind("Unsupported")

	// InternalError is returned when internal logic got error
	InternalError = ErrorKind("Internal Error")

	// Closed is returned when an operation is called after the owner has been closed.
	Closed = ErrorKind("Closed")

	OverflowUint64  = ErrorKind("overflow uint64")
	OverflowUint128 = ErrorKind("overflow uint128")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
