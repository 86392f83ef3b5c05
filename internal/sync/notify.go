package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Notification is a user-visible alert fired when a long-poll response
// changes the data.
type Notification struct {
	Title string
	Body  string
	Count int
}

// newUpdateNotification builds the alert for a snapshot of count fissures.
func newUpdateNotification(count int) Notification {
	return Notification{
		Title: "Fissures updated",
		Body:  fmt.Sprintf("There are now %d fissures.", count),
		Count: count,
	}
}

// Notifier fires a user-visible alert. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Permission is the user's answer to "may we show notifications".
type Permission int

// Notification permission states.
const (
	PermissionDefault Permission = iota // not asked yet
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "default"
	}
}

// PermissionSource queries and requests notification permission.
type PermissionSource interface {
	Permission() Permission
	RequestPermission() Permission
}

// GatedNotifier wraps a Notifier with the permission gate and a rate limit.
// Permission is evaluated once, at construction. Notify never returns an
// error: failures are logged and dropped.
type GatedNotifier struct {
	inner      Notifier
	permission Permission
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewGatedNotifier evaluates permission once, requesting it when it has
// not been decided yet, and returns the gated notifier. minInterval bounds
// how often alerts fire; zero disables the limit. A nil inner or perms
// yields a notifier that never fires.
func NewGatedNotifier(inner Notifier, perms PermissionSource, minInterval time.Duration, logger *slog.Logger) *GatedNotifier {
	permission := PermissionDenied
	if inner != nil && perms != nil {
		permission = perms.Permission()
		if permission == PermissionDefault {
			permission = perms.RequestPermission()
		}
	}

	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	logger.Debug("notification permission evaluated", slog.String("permission", permission.String()))

	return &GatedNotifier{
		inner:      inner,
		permission: permission,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Permission returns the permission evaluated at construction.
func (g *GatedNotifier) Permission() Permission {
	return g.permission
}

// Notify fires n if permission was granted and the rate limit allows it.
func (g *GatedNotifier) Notify(ctx context.Context, n Notification) error {
	if g.permission != PermissionGranted {
		return nil
	}

	if !g.limiter.Allow() {
		g.logger.Debug("notification throttled", slog.Int("count", n.Count))

		return nil
	}

	if err := g.inner.Notify(ctx, n); err != nil {
		g.logger.Warn("notification failed", slog.String("error", err.Error()))
	}

	return nil
}
