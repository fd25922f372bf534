package config

import (
	"fmt"
	"os"
	"strings"

	"ChartAggregator/internal/domain"
)

// ChartSources converts the configured source table into immutable domain values,
// filling timeouts, parsers, rank mode and required fields from defaults.
func (c Config) ChartSources() []domain.ChartSource {
	sources := make([]domain.ChartSource, 0, len(c.Sources))
	for _, src := range c.Sources {
		sources = append(sources, c.toChartSource(src))
	}
	return sources
}

func (c Config) toChartSource(src SourceConfig) domain.ChartSource {
	rankMode := domain.RankMode(strings.ToLower(strings.TrimSpace(src.RankBy)))
	if rankMode == "" {
		rankMode = domain.RankByPosition
	}

	period := domain.Period(strings.ToLower(strings.TrimSpace(src.Period)))
	if period == "" {
		period = domain.PeriodDaily
	}

	maxEntries := src.MaxEntries
	if maxEntries == 0 {
		maxEntries = c.Acquisition.DefaultMaxEntries
	}

	required := src.Required
	if len(required) == 0 {
		required = defaultRequired(rankMode)
	}

	strategies := make([]domain.FetchStrategy, 0, len(src.Strategies))
	for i, st := range src.Strategies {
		strategies = append(strategies, c.toStrategy(i, st))
	}

	title := src.Title
	if title == "" {
		title = src.ID
	}

	return domain.ChartSource{
		ID:                  strings.TrimSpace(src.ID),
		Title:               title,
		Region:              src.Region,
		RegionParams:        copyStrings(src.RegionParams),
		RegionNames:         copyStrings(src.RegionNames),
		Period:              period,
		Strategies:          strategies,
		FieldMapping:        copyMapping(src.Fields),
		RequiredFields:      append([]string(nil), required...),
		RankMode:            rankMode,
		TitleDelimiter:      src.TitleDelimiter,
		MaxEntries:          maxEntries,
		ExternalRefTemplate: src.ExternalRefTemplate,
		PostTitle:           src.PostTitle,
	}
}

func (c Config) toStrategy(index int, st StrategyConfig) domain.FetchStrategy {
	name := strings.TrimSpace(st.Name)
	if name == "" {
		name = fmt.Sprintf("strategy-%d", index+1)
	}

	kind := domain.StrategyKind(strings.ToLower(strings.TrimSpace(st.Kind)))
	if kind == "" {
		kind = domain.StrategyStatic
	}

	timeout := st.Timeout.Std()
	if timeout <= 0 {
		if kind == domain.StrategyRendered {
			timeout = c.Acquisition.RenderTimeout.Std()
		} else {
			timeout = c.Acquisition.StaticTimeout.Std()
		}
	}

	parser := st.Parser
	if parser == "" {
		parser = "html"
	}

	headers := make(map[string]string, len(st.Headers))
	for k, v := range st.Headers {
		headers[k] = os.ExpandEnv(v)
	}

	return domain.FetchStrategy{
		Name:            name,
		Kind:            kind,
		URL:             st.URL,
		Headers:         headers,
		Timeout:         timeout,
		ReadyMarker:     st.ReadySelector,
		DismissSelector: st.DismissSelector,
		ScrollToBottom:  st.ScrollToBottom,
		FollowLink:      st.FollowLink,
		Parser:          parser,
		Scheme: domain.ParseScheme{
			Row:      st.Scheme.Row,
			Columns:  copyStrings(st.Scheme.Columns),
			SkipRows: st.Scheme.SkipRows,
		},
		SubstituteRegion: st.SubstituteRegion,
		SubstituteOf:     st.SubstituteOf,
	}
}

func defaultRequired(mode domain.RankMode) []string {
	if mode == domain.RankByScore {
		return []string{domain.FieldTitle, domain.FieldArtist, domain.FieldScore}
	}
	return []string{domain.FieldRank, domain.FieldTitle, domain.FieldArtist}
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyMapping(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}
