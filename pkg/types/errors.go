package types

import "errors"

// Search errors. Strategies wrap these with context; callers match with errors.Is.
var (
	ErrInvalidQuery      = errors.New("invalid query")
	ErrUnknownMode       = errors.New("unknown search mode")
	ErrMissingEmbeddings = errors.New("embeddings not available")
	ErrProviderFailure   = errors.New("embedding provider failure")
)

// Domain errors for index validation
var (
	ErrEmptyToolName          = errors.New("tool name cannot be empty")
	ErrDuplicateToolName      = errors.New("duplicate tool name")
	ErrEmbeddingDimension     = errors.New("embedding length does not match index dimensions")
	ErrStatisticsInconsistent = errors.New("corpus statistics do not match tools")
)
