// Package track implements client-side engagement heuristics: a view is
// reported only after the viewer plausibly engaged with the content,
// not merely loaded it. Three trackers cover the three heuristics:
// visible time on page, scroll depth, and a simple fixed delay.
package track

import (
	"context"

	"github.com/bulletdrop/analytics/pkg/client"
)

// Recorder delivers view events, best-effort. *client.Client satisfies
// it; the result of recording is discarded by contract.
type Recorder interface {
	RecordFileView(ctx context.Context, uploadID int64, event client.ViewEvent)
	RecordProfileView(ctx context.Context, userID int64, event client.ViewEvent)
}

var _ Recorder = (*client.Client)(nil)

func record(r Recorder, ct client.ContentType, contentID int64) {
	switch ct {
	case client.ContentProfile:
		r.RecordProfileView(context.Background(), contentID, client.ViewEvent{})
	default:
		r.RecordFileView(context.Background(), contentID, client.ViewEvent{})
	}
}
