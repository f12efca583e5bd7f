package worker

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/sla"
)

// StartSLAWorker launches the background violation sweeper. It returns
// immediately; the sweeper stops when ctx is cancelled.
func StartSLAWorker(ctx context.Context, sweeper *sla.Sweeper) {
	if sweeper == nil {
		return
	}
	go sweeper.Run(ctx)
}
