package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ChartAggregator/internal/config"
	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/logging"
)

const chartPage = `<html><body><ul class="chart">
<li><span class="pos">1</span><b>First Song｜OST</b><i>Singer A</i></li>
<li><span class="pos">2</span><b>Second Song</b><i>Singer B</i></li>
</ul></body></html>`

func testConfig(dir, chartURL string) config.Config {
	return config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Output:  config.OutputConfig{Dir: dir},
		Store:   config.StoreConfig{Driver: "file"},
		Acquisition: config.AcquisitionConfig{
			MaxConcurrency:    2,
			StaticTimeout:     config.Duration(2 * time.Second),
			RenderTimeout:     config.Duration(2 * time.Second),
			DefaultMaxEntries: 20,
		},
		Sources: []config.SourceConfig{
			{
				ID:             "radio",
				TitleDelimiter: "｜",
				Fields: map[string][]string{
					"rank":   {"rank", "@position"},
					"title":  {"song"},
					"artist": {"singer"},
				},
				Strategies: []config.StrategyConfig{
					{
						Name: "page",
						URL:  chartURL,
						Scheme: config.SchemeConfig{
							Row:     "ul.chart li",
							Columns: map[string]string{"rank": "span.pos", "song": "b", "singer": "i"},
						},
					},
				},
			},
			{
				ID: "offline",
				Strategies: []config.StrategyConfig{
					{Name: "gone", URL: chartURL + "/missing", Scheme: config.SchemeConfig{Row: "li"}},
				},
			},
		},
	}
}

func TestApplicationRunWritesArtifacts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(chartPage))
	}))
	defer server.Close()

	dir := t.TempDir()
	application, err := New(context.Background(), testConfig(dir, server.URL+"/chart"), logging.New("error"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer application.Close()

	if err := application.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	day := time.Now().UTC()
	read := func(id string) domain.AggregationRun {
		t.Helper()
		path := filepath.Join(dir, id, id+"_"+day.Format("20060102")+".json")
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read artifact %s: %v", path, err)
		}
		var run domain.AggregationRun
		if err := json.Unmarshal(raw, &run); err != nil {
			t.Fatalf("decode artifact: %v", err)
		}
		return run
	}

	radio := read("radio")
	if radio.Status != domain.StatusSuccess || len(radio.Entries) != 2 {
		t.Fatalf("unexpected radio run: %+v", radio)
	}
	if radio.Entries[0].Title != "First Song" || radio.Entries[0].Artist != "Singer A" {
		t.Fatalf("unexpected first entry: %+v", radio.Entries[0])
	}

	offline := read("offline")
	if offline.Status != domain.StatusFailed || offline.FailureReason != domain.ReasonSourceExhausted {
		t.Fatalf("unexpected offline run: %+v", offline)
	}
}

func TestNewRejectsBrokenStore(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t.TempDir(), "http://127.0.0.1:1")
	cfg.Store = config.StoreConfig{Driver: "postgres", DSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"}

	if _, err := New(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatal("expected error for unreachable database")
	}
}
