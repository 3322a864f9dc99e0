package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrMissingAPIKey is returned when no key came from flags, file or environment.
	ErrMissingAPIKey = errors.New("missing API key: use --api-key, the config file, or FRIENDCRAWL_API_KEY")

	// ErrMissingStatePath is returned when the snapshot path is empty.
	ErrMissingStatePath = errors.New("missing state file path")

	// ErrInvalidSeed is returned when the seed is not a numeric community id.
	ErrInvalidSeed = errors.New("invalid seed: must be a numeric 64-bit id")

	// ErrInvalidTargetApp is returned when the app id is not positive.
	ErrInvalidTargetApp = errors.New("invalid target app: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is outside 1..100.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be between 1 and 100")

	// ErrInvalidRequestInterval is returned for a negative request interval.
	ErrInvalidRequestInterval = errors.New("invalid request interval: must be non-negative")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned for a retry policy that cannot make an attempt.
	ErrInvalidRetries = errors.New("invalid retry policy: need at least one attempt and non-negative delays")

	// ErrInvalidBackoff is returned when the 429 backoff bounds are inconsistent.
	ErrInvalidBackoff = errors.New("invalid backoff: initial must be positive and not above max")

	// ErrInvalidCheckpointInterval is returned when the checkpoint interval is not positive.
	ErrInvalidCheckpointInterval = errors.New("invalid checkpoint interval: must be positive")

	// ErrInvalidProgressInterval is returned for a negative progress interval.
	ErrInvalidProgressInterval = errors.New("invalid progress interval: must be non-negative")

	// ErrInvalidWorkers is returned when the ownership worker count is below one.
	ErrInvalidWorkers = errors.New("invalid workers: must be at least 1")

	// ErrInvalidMaxExpandFailures is returned for a negative failure cap.
	ErrInvalidMaxExpandFailures = errors.New("invalid max expand failures: must be non-negative")

	// ErrInvalidMaxExpansions is returned for a negative expansion limit.
	ErrInvalidMaxExpansions = errors.New("invalid max expansions: must be non-negative")

	// ErrConflictingTransports is returned when both --proxy and --tor are set.
	ErrConflictingTransports = errors.New("conflicting transports: --proxy and --tor cannot be used together")

	// ErrConflictingReportFormats is returned when both --json and --markdown are set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidLogFormat is returned for a log format other than text or json.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")
)
