package pensee

import (
	"github.com/hazyhaar/pensee/internal/store"
	"github.com/hazyhaar/pensee/internal/thought"
)

// ErrInvalidInput is returned when thought input fails validation.
var ErrInvalidInput = thought.ErrInvalidInput

// ErrStorageUnavailable is returned when the session lock cannot be
// acquired in time. The operation can be retried.
var ErrStorageUnavailable = store.ErrUnavailable

// ErrWriteFailed is returned when a durable write did not complete.
var ErrWriteFailed = store.ErrWriteFailed
