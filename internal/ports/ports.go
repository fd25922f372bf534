package ports

import (
	"context"
	"time"

	"ChartAggregator/internal/domain"
)

// StaticFetcher retrieves a document with a single request.
type StaticFetcher interface {
	FetchStatic(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// RenderedRequest describes a page that must be rendered before reading.
type RenderedRequest struct {
	URL             string
	ReadyMarker     string
	Timeout         time.Duration
	DismissSelector string
	ScrollToBottom  bool
	FollowLink      string
}

// RenderedFetcher loads a page in a browser and returns its HTML once the ready marker exists.
type RenderedFetcher interface {
	FetchRendered(ctx context.Context, req RenderedRequest) ([]byte, error)
}

// ArtifactStore persists one aggregation run per source and period.
type ArtifactStore interface {
	Write(ctx context.Context, sourceID, periodKey string, run domain.AggregationRun) error
	Read(ctx context.Context, sourceID, periodKey string) (domain.AggregationRun, error)
}

// Post is the rendered representation handed to a publication channel.
type Post struct {
	Title string
	HTML  string
	Text  string
}

// Publisher performs one side-effecting publish of a finished chart.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, post Post) error
}

// Commentator writes the introductory paragraph of a chart post.
type Commentator interface {
	Comment(ctx context.Context, run domain.AggregationRun) (string, error)
}

// Scheduler controls when acquisition runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
