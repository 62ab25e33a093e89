package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/metergate/metergate/internal/domain"
	"github.com/metergate/metergate/internal/transport/cursor"
)

// hard stop regardless of what the upstream total claims
const maxPages = 1000

// pageClient is the consumer interface for the upstream events endpoint (ISP).
type pageClient interface {
	EventsPage(ctx context.Context, startDate, endDate int64, page int) (cursor.EventsPage, error)
	PageSize() int
}

// Result is the outcome of a period fetch. Complete is false when pagination
// stopped before the reported total was reached.
type Result struct {
	Events     []domain.UsageEvent
	TotalCount int
	Complete   bool
}

// Fetcher pulls every usage event of a billing period, page by page.
type Fetcher struct {
	client pageClient
	logger *zap.Logger
}

// New creates an events fetcher.
func New(client pageClient, logger *zap.Logger) *Fetcher {
	return &Fetcher{client: client, logger: logger}
}

// FetchPeriod retrieves all usage events inside the period. Pages are
// requested sequentially starting at 1; the loop continues while the
// accumulated count is below the server-reported total and the last page was
// full. An error on the first page is returned as is; an error on a later
// page ends the fetch with the partial result and Complete false.
func (f *Fetcher) FetchPeriod(ctx context.Context, period domain.BillingPeriod) (Result, error) {
	var (
		out      Result
		pageSize = f.client.PageSize()
		startMs  = period.StartDate.UnixMilli()
		endMs    = period.EndDate.UnixMilli()
	)

	for page := 1; page <= maxPages; page++ {
		pg, err := f.client.EventsPage(ctx, startMs, endMs, page)
		if err != nil {
			if page == 1 {
				return Result{}, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			f.logger.Warn("event fetch stopped mid-pagination",
				zap.Int("page", page),
				zap.Int("fetched", len(out.Events)),
				zap.Error(err))
			out.Complete = false
			return out, nil
		}

		if page == 1 {
			out.TotalCount = pg.TotalCount
		} else if pg.TotalCount != out.TotalCount {
			// The period changed underneath us. Keep what we have but do
			// not present it as a complete view.
			f.logger.Warn("upstream total changed between pages",
				zap.Int("page", page),
				zap.Int("first_total", out.TotalCount),
				zap.Int("new_total", pg.TotalCount))
			out.Events = append(out.Events, pg.Events...)
			out.Complete = false
			return out, nil
		}

		out.Events = append(out.Events, pg.Events...)

		hasMore := page*pageSize < out.TotalCount && len(pg.Events) == pageSize
		if !hasMore {
			out.Complete = true
			return out, nil
		}
	}

	// The page cap cut pagination short of the reported total.
	f.logger.Warn("page cap reached mid-pagination",
		zap.Int("fetched", len(out.Events)),
		zap.Int("total", out.TotalCount))
	return out, nil
}
