// Package source defines where inbound messages come from.
package source

import (
	"context"
	"time"

	"github.com/linnemanlabs/mailwatch/internal/message"
)

// Source fetches messages received at or after since, up to limit. Order is
// source-defined; callers dedup and re-sort as needed.
type Source interface {
	Fetch(ctx context.Context, since time.Time, limit int) ([]*message.Message, error)
}
