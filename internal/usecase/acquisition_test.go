package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ChartAggregator/internal/artifact"
	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
	"ChartAggregator/internal/resolver"
	"ChartAggregator/internal/scanner"
)

// csvLines scans "title,artist,score" lines.
type csvLines struct{}

func (csvLines) Name() string { return "lines" }

func (csvLines) Scan(body []byte, _ domain.ParseScheme) ([]domain.RawRecord, error) {
	var out []domain.RawRecord
	for i, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		if line == "" {
			continue
		}
		f := strings.Split(line, ",")
		rec := domain.RawRecord{"title": f[0], "artist": f[1], domain.PositionKey: float64(i + 1)}
		if len(f) > 2 {
			rec["score"] = f[2]
		}
		out = append(out, rec)
	}
	return out, nil
}

type pages struct {
	mu      sync.Mutex
	bodies  map[string]string
	calls   map[string]int
	blockOn string
}

func (p *pages) fetch(ctx context.Context, url string) ([]byte, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[url]++
	body, ok := p.bodies[url]
	p.mu.Unlock()

	if url == p.blockOn {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s unavailable", domain.ErrNetwork, url)
	}
	return []byte(body), nil
}

func (p *pages) FetchStatic(ctx context.Context, url string, _ map[string]string) ([]byte, error) {
	return p.fetch(ctx, url)
}

func (p *pages) FetchRendered(ctx context.Context, req ports.RenderedRequest) ([]byte, error) {
	if req.URL == "https://slow/live" {
		return nil, fmt.Errorf("%w: %s never showed", domain.ErrRenderTimeout, req.ReadyMarker)
	}
	return p.fetch(ctx, req.URL)
}

type memoryStore struct {
	mu   sync.Mutex
	runs map[string]domain.AggregationRun
	fail map[string]bool
}

func (m *memoryStore) Write(_ context.Context, sourceID, periodKey string, run domain.AggregationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[sourceID] {
		return errors.New("disk full")
	}
	if m.runs == nil {
		m.runs = map[string]domain.AggregationRun{}
	}
	m.runs[sourceID+"/"+periodKey] = run
	return nil
}

func (m *memoryStore) Read(_ context.Context, sourceID, periodKey string) (domain.AggregationRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[sourceID+"/"+periodKey]
	if !ok {
		return domain.AggregationRun{}, domain.ErrNotFound
	}
	return run, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	posts []ports.Post
	err   error
}

func (r *recordingPublisher) Name() string { return "recording" }

func (r *recordingPublisher) Publish(_ context.Context, post ports.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post)
	return r.err
}

type failingCommentator struct{}

func (failingCommentator) Comment(context.Context, domain.AggregationRun) (string, error) {
	return "", errors.New("quota exceeded")
}

func strategy(name, kind, url string) domain.FetchStrategy {
	st := domain.FetchStrategy{Name: name, Kind: domain.StrategyKind(kind), URL: url, Timeout: time.Second, Parser: "lines"}
	if kind == string(domain.StrategyRendered) {
		st.ReadyMarker = "li"
	}
	return st
}

func positionSource(id string, strategies ...domain.FetchStrategy) domain.ChartSource {
	return domain.ChartSource{
		ID:             id,
		Title:          id + " chart",
		Period:         domain.PeriodDaily,
		Strategies:     strategies,
		RequiredFields: []string{domain.FieldRank, domain.FieldTitle, domain.FieldArtist},
		FieldMapping:   map[string][]string{domain.FieldRank: {domain.PositionKey}},
		RankMode:       domain.RankByPosition,
		MaxEntries:     20,
	}
}

var acquiredAt = time.Date(2026, time.October, 16, 2, 0, 0, 0, time.UTC)

func newAcquisition(p *pages, store *memoryStore, pub *recordingPublisher, sources ...domain.ChartSource) *Acquisition {
	var publishers []ports.Publisher
	if pub != nil {
		publishers = append(publishers, pub)
	}
	return NewAcquisition(AcquisitionDeps{
		Sources:        sources,
		Resolver:       resolver.New(p, p, scanner.NewRegistry(csvLines{}), nil),
		Artifacts:      artifact.NewManager(store, time.UTC, nil),
		Publishers:     publishers,
		Commentator:    failingCommentator{},
		MaxConcurrency: 2,
	})
}

func TestAcquisitionRun(t *testing.T) {
	t.Parallel()

	var many strings.Builder
	for i := 0; i < 35; i++ {
		fmt.Fprintf(&many, "song%02d,artist%02d,%d\n", i, i, i)
	}

	p := &pages{bodies: map[string]string{
		"https://ok/chart":     "A,X\nB,Y\nA,X",
		"https://slow/static":  "Backup,Band",
		"https://broken/chart": ",nobody",
		"https://streams/sg":   many.String(),
	}}
	store := &memoryStore{}
	pub := &recordingPublisher{}

	streams := domain.ChartSource{
		ID:             "streams",
		Title:          "Streams",
		Region:         "sg",
		Strategies:     []domain.FetchStrategy{strategy("api", "static", "https://streams/{region}")},
		RequiredFields: []string{domain.FieldTitle, domain.FieldArtist, domain.FieldScore},
		RankMode:       domain.RankByScore,
		MaxEntries:     20,
	}

	sources := []domain.ChartSource{
		positionSource("ok", strategy("primary", "static", "https://ok/chart")),
		positionSource("slow", strategy("live", "rendered", "https://slow/live"), strategy("backup", "static", "https://slow/static")),
		positionSource("down", strategy("primary", "static", "https://down/chart")),
		positionSource("broken", strategy("primary", "static", "https://broken/chart")),
		streams,
	}

	report, err := newAcquisition(p, store, pub, sources...).Run(context.Background(), acquiredAt)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.BatchID == "" {
		t.Fatal("batch id missing")
	}
	if len(report.Runs) != len(sources) {
		t.Fatalf("expected %d runs, got %d", len(sources), len(report.Runs))
	}

	want := map[string]struct {
		status  domain.RunStatus
		reason  domain.FailureReason
		entries int
	}{
		"ok":      {domain.StatusSuccess, "", 2},
		"slow":    {domain.StatusPartialSuccess, "", 1},
		"down":    {domain.StatusFailed, domain.ReasonSourceExhausted, 0},
		"broken":  {domain.StatusFailed, domain.ReasonNoValidEntries, 0},
		"streams": {domain.StatusSuccess, "", 20},
	}
	for i, run := range report.Runs {
		if run.SourceID != sources[i].ID {
			t.Fatalf("runs must follow configuration order, got %s at %d", run.SourceID, i)
		}
		w := want[run.SourceID]
		if run.Status != w.status || run.FailureReason != w.reason || len(run.Entries) != w.entries {
			t.Fatalf("%s: got status=%s reason=%s entries=%d", run.SourceID, run.Status, run.FailureReason, len(run.Entries))
		}
		for j, e := range run.Entries {
			if e.Rank != j+1 {
				t.Fatalf("%s: rank %d at index %d", run.SourceID, e.Rank, j)
			}
		}
		if _, err := store.Read(context.Background(), run.SourceID, "2026-10-16"); err != nil {
			t.Fatalf("%s: artifact not persisted: %v", run.SourceID, err)
		}
	}

	if top := report.Runs[4].Entries[0]; top.Title != "song34" {
		t.Fatalf("score ranking wrong, top=%+v", top)
	}

	if report.Published != 3 || len(pub.posts) != 3 {
		t.Fatalf("expected one publish per publishable run, got %d/%d", report.Published, len(pub.posts))
	}
	for _, post := range pub.posts {
		if !strings.Contains(post.HTML, "本期前") {
			t.Fatalf("static commentary should back a failing commentator: %s", post.HTML)
		}
	}
}

func TestAcquisitionRejectsConfigurationBeforeFetching(t *testing.T) {
	t.Parallel()

	p := &pages{}
	store := &memoryStore{}
	good := positionSource("good", strategy("primary", "static", "https://good"))
	bad := positionSource("bad")

	_, err := newAcquisition(p, store, nil, good, bad).Run(context.Background(), acquiredAt)
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if len(p.calls) != 0 || len(store.runs) != 0 {
		t.Fatalf("nothing may happen before validation, calls=%v runs=%d", p.calls, len(store.runs))
	}
}

func TestAcquisitionSurfacesWriteErrors(t *testing.T) {
	t.Parallel()

	p := &pages{bodies: map[string]string{"https://a": "A,X", "https://b": "B,Y"}}
	store := &memoryStore{fail: map[string]bool{"a": true}}
	pub := &recordingPublisher{}

	report, err := newAcquisition(p, store, pub,
		positionSource("a", strategy("primary", "static", "https://a")),
		positionSource("b", strategy("primary", "static", "https://b")),
	).Run(context.Background(), acquiredAt)

	if !errors.Is(err, domain.ErrArtifactWrite) {
		t.Fatalf("expected ErrArtifactWrite, got %v", err)
	}
	if len(report.Runs) != 1 || report.Runs[0].SourceID != "b" {
		t.Fatalf("sibling source should still finalize, got %+v", report.Runs)
	}
	if len(pub.posts) != 1 {
		t.Fatalf("unrecorded runs must not be published, posts=%d", len(pub.posts))
	}
}

func TestAcquisitionCancellationFinalizesNothing(t *testing.T) {
	t.Parallel()

	p := &pages{bodies: map[string]string{"https://hang": ""}, blockOn: "https://hang"}
	store := &memoryStore{}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	report, err := newAcquisition(p, store, nil,
		positionSource("hang", strategy("primary", "static", "https://hang"), strategy("backup", "static", "https://backup")),
	).Run(ctx, acquiredAt)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Runs) != 0 || len(store.runs) != 0 {
		t.Fatalf("cancelled run must not produce artifacts, runs=%d stored=%d", len(report.Runs), len(store.runs))
	}
	if p.calls["https://backup"] != 0 {
		t.Fatal("cancelled source must not advance to the backup strategy")
	}
}

func TestAcquisitionPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	p := &pages{bodies: map[string]string{"https://a": "A,X"}}
	pub := &recordingPublisher{err: errors.New("blogger down")}

	report, err := newAcquisition(p, &memoryStore{}, pub,
		positionSource("a", strategy("primary", "static", "https://a")),
	).Run(context.Background(), acquiredAt)
	if err != nil {
		t.Fatalf("publish errors must not fail the run: %v", err)
	}
	if report.Published != 0 || len(pub.posts) != 1 {
		t.Fatalf("expected one failed publish attempt, published=%d attempts=%d", report.Published, len(pub.posts))
	}
}
