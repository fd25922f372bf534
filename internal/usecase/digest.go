package usecase

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

const defaultPostTitle = "{title} - {date}"

var postBody = template.Must(template.New("post").Funcs(template.FuncMap{
	"score": formatScore,
}).Parse(`<p>{{.Commentary}}</p>
<p>日期：{{.Date}}</p>
<table border="1" cellpadding="6" cellspacing="0" style="border-collapse:collapse; width:100%; font-family:sans-serif;">
<thead><tr style="background-color:#f2f2f2;"><th>排名</th><th>歌曲</th><th>歌手</th>{{if .Scored}}<th>熱度</th>{{end}}<th>連結</th></tr></thead>
<tbody>
{{- range .Entries}}
<tr><td>{{.Rank}}</td><td>{{.Title}}</td><td>{{.Artist}}</td>{{if $.Scored}}<td>{{score .Score}}</td>{{end}}<td>{{if .ExternalRef}}<a href="{{.ExternalRef}}" target="_blank">🎵</a>{{end}}</td></tr>
{{- end}}
</tbody>
</table>
`))

// RenderPost derives the publishable representation of run.
func RenderPost(src domain.ChartSource, run domain.AggregationRun, commentary string) ports.Post {
	title := PostTitle(src, run)

	var html bytes.Buffer
	data := struct {
		Commentary string
		Date       string
		Scored     bool
		Entries    []domain.CanonicalEntry
	}{commentary, run.PeriodKey, src.RankMode == domain.RankByScore, run.Entries}
	if err := postBody.Execute(&html, data); err != nil {
		// Only reachable with a broken template; fall back to the plain text.
		html.Reset()
		html.WriteString(template.HTMLEscapeString(commentary))
	}

	var text strings.Builder
	text.WriteString(title)
	text.WriteString("\n\n")
	if commentary != "" {
		text.WriteString(commentary)
		text.WriteString("\n\n")
	}
	for _, e := range run.Entries {
		fmt.Fprintf(&text, "%d. %s - %s\n", e.Rank, e.Title, e.Artist)
	}

	return ports.Post{Title: title, HTML: html.String(), Text: strings.TrimRight(text.String(), "\n")}
}

// PostTitle expands {title}, {date}, {week}, {region} and {regionName} in the source's template.
func PostTitle(src domain.ChartSource, run domain.AggregationRun) string {
	pattern := src.PostTitle
	if pattern == "" {
		pattern = defaultPostTitle
	}

	region := run.Region
	if region == "" {
		region = src.Region
	}

	week := ""
	if day, err := time.Parse("2006-01-02", run.PeriodKey); err == nil {
		week = strconv.Itoa(sundayWeek(day))
	}

	return strings.NewReplacer(
		"{title}", src.Title,
		"{date}", run.PeriodKey,
		"{week}", week,
		"{region}", region,
		"{regionName}", src.RegionName(region),
	).Replace(pattern)
}

// StaticCommentary names the top three entries.
func StaticCommentary(run domain.AggregationRun) string {
	top := run.Entries
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) == 0 {
		return ""
	}

	names := make([]string, 0, len(top))
	for _, e := range top {
		names = append(names, fmt.Sprintf("《%s》 by %s", e.Title, e.Artist))
	}
	return fmt.Sprintf("本期前 %d 名歌曲為：%s。", len(top), strings.Join(names, "、"))
}

// sundayWeek numbers weeks from the first Sunday of the year; earlier days are week 0.
func sundayWeek(t time.Time) int {
	return (t.YearDay() - 1 + 7 - int(t.Weekday())) / 7
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
