package agent

import "github.com/debugstub/ds2agent/internal/constants"

// Re-export the package's defaults as part of the public API.
const (
	DefaultQueueDepth     = constants.DefaultQueueDepth
	MaxPacketSize         = constants.MaxPacketSize
	DefaultDequeueTimeout = constants.DefaultDequeueTimeout
)
