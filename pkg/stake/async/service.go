package async

import (
	"context"
)

// Service is a long running background process
type Service interface {
	// Start runs the service until ctx is cancelled
	Start(ctx context.Context) error
}
