package ports

import (
	"context"

	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// ActivitySink publishes the player's activity to an external status service.
type ActivitySink interface {
	// Connect opens the connection; the other calls are only made after it succeeded.
	Connect(ctx context.Context) error

	// Update replaces the published activity.
	Update(ctx context.Context, activity domain.Activity) error

	// Clear removes the published activity.
	Clear(ctx context.Context) error

	Close() error
}
