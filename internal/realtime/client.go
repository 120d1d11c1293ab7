package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

// SSEClient is one open event stream. Channels are receipt or job ids.
type SSEClient struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	once     sync.Once
	Logger   *logger.Logger
}
