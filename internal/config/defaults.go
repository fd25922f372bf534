package config

import "time"

var spotifyRegionNames = map[string]string{
	"my":     "馬來西亞",
	"sg":     "新加坡",
	"ph":     "菲律賓",
	"id":     "印尼",
	"global": "全球",
}

// Spotify "Top 50" playlist per region.
var spotifyPlaylists = map[string]string{
	"my":     "37i9dQZEVXbJlfUljuZExa",
	"sg":     "37i9dQZEVXbK4yq3zF3r3E",
	"ph":     "37i9dQZEVXbNBz9cRCSFkY",
	"id":     "37i9dQZEVXbObFQZ3JLcXt",
	"global": "37i9dQZEVXbMDoHDwVN2tF",
}

const spotifySearchTemplate = "https://open.spotify.com/search/{query}"

func defaultSources() []SourceConfig {
	sources := []SourceConfig{
		{
			ID:                  "988",
			Title:               "988 音乐排行榜",
			MaxEntries:          20,
			TitleDelimiter:      "｜",
			ExternalRefTemplate: spotifySearchTemplate,
			PostTitle:           "{title} - 第 {week} 周",
			Fields: map[string][]string{
				"rank":   {"rank", "@position"},
				"title":  {"title"},
				"artist": {"artist"},
			},
			Strategies: []StrategyConfig{
				{
					Name:            "rendered-chart",
					Kind:            "rendered",
					URL:             "https://988.com.my/music_chart/",
					ReadySelector:   "div.song-container",
					DismissSelector: ".modal-close-button, .modal-close, .login-modal .close",
					ScrollToBottom:  true,
					Timeout:         Duration(20 * time.Second),
					Scheme: SchemeConfig{
						Row: "div.song-container",
						Columns: map[string]string{
							"rank":   "p.ranking-text",
							"title":  "p.song-title.music-chart-song-title",
							"artist": "p.artist-name",
						},
					},
				},
				{
					Name: "static-list",
					Kind: "static",
					URL:  "https://988.com.my/music_chart/",
					Scheme: SchemeConfig{
						Row: ".music_chart_list .music_chart_content",
						Columns: map[string]string{
							"title":  ".music_chart_title",
							"artist": ".music_chart_singer",
						},
					},
				},
			},
		},
		{
			ID:                  "myfm",
			Title:               "MY FM Music 20",
			MaxEntries:          20,
			ExternalRefTemplate: spotifySearchTemplate,
			PostTitle:           "MY FM Music Chart - {date}",
			Fields: map[string][]string{
				"rank":   {"rank", "@position"},
				"title":  {"title"},
				"artist": {"artist"},
			},
			Strategies: []StrategyConfig{
				{
					Name:          "syok-homepage",
					Kind:          "rendered",
					URL:           "https://my.syok.my",
					FollowLink:    "charts/my-fm-music-chart",
					ReadySelector: "li.chart-listing--items",
					Timeout:       Duration(15 * time.Second),
					Scheme: SchemeConfig{
						Row: "li.chart-listing--items",
						Columns: map[string]string{
							"rank":   "span.chart-listing--position",
							"title":  "h2.chart-listing--song",
							"artist": "h6.chart-listing--artist",
						},
					},
				},
				{
					Name:          "syok-chart-page",
					Kind:          "rendered",
					URL:           "https://my.syok.my/charts/my-fm-music-chart-2025",
					ReadySelector: ".music-chart-list",
					Scheme: SchemeConfig{
						Row: ".music-chart-list li",
						Columns: map[string]string{
							"title":  ".music-chart-song-title",
							"artist": ".music-chart-song-artist",
						},
					},
				},
			},
		},
		{
			ID:                  "eightfm",
			Title:               "EIGHT FM 20好听榜",
			MaxEntries:          20,
			ExternalRefTemplate: spotifySearchTemplate,
			PostTitle:           "EIGHT FM Chart - {date}",
			Fields: map[string][]string{
				"rank":   {"rank", "@position"},
				"title":  {"song"},
				"artist": {"artist"},
			},
			Strategies: []StrategyConfig{
				{
					Name:          "chart-page",
					Kind:          "rendered",
					URL:           "https://www.eight.audio/eight-fm-20好听榜/",
					ReadySelector: ".today-list-wrapper",
					Scheme: SchemeConfig{
						Row: ".song-wrapper",
						Columns: map[string]string{
							"rank":   ".song-index-num",
							"song":   ".song-detail-name",
							"artist": ".song-detail-artist",
						},
					},
				},
				{
					Name: "homepage-cards",
					Kind: "static",
					URL:  "https://www.eight.audio/",
					Scheme: SchemeConfig{
						Row: ".chart-card",
						Columns: map[string]string{
							"song":   ".chart-card-title",
							"artist": ".chart-card-singer",
						},
					},
				},
			},
		},
	}

	for _, region := range []string{"my", "sg", "ph", "id"} {
		sources = append(sources, spotifySource(region))
	}
	return sources
}

func spotifySource(region string) SourceConfig {
	return SourceConfig{
		ID:           "spotify-" + region,
		Title:        "每週歌曲數據榜",
		Region:       region,
		RegionParams: spotifyPlaylists,
		RegionNames:  spotifyRegionNames,
		MaxEntries:   50,
		RankBy:       "score",
		PostTitle:    "{title}（{regionName}）",
		Fields: map[string][]string{
			"title":       {"Track Name", "name"},
			"artist":      {"Artist", "artist"},
			"score":       {"Streams", "popularity"},
			"externalRef": {"URL", "url"},
		},
		Strategies: []StrategyConfig{
			{
				Name:   "charts-csv",
				Kind:   "static",
				URL:    "https://spotifycharts.com/regional/{region}/weekly/latest/download",
				Parser: "csv",
				Scheme: SchemeConfig{
					SkipRows: 1,
					Columns: map[string]string{
						"Position":   "Position",
						"Track Name": "Track Name",
						"Artist":     "Artist",
						"Streams":    "Streams",
						"URL":        "URL",
					},
				},
			},
			{
				Name:    "playlist",
				Kind:    "static",
				URL:     "https://api.spotify.com/v1/playlists/{regionParam}",
				Headers: map[string]string{"Authorization": "Bearer ${SPOTIFY_ACCESS_TOKEN}"},
				Parser:  "json",
				Scheme: SchemeConfig{
					Row: "tracks.items",
					Columns: map[string]string{
						"name":       "track.name",
						"artist":     "track.artists.0.name",
						"popularity": "track.popularity",
						"url":        "track.external_urls.spotify",
					},
				},
			},
			{
				Name:             "playlist-global",
				SubstituteRegion: "global",
				SubstituteOf:     "playlist",
			},
		},
	}
}
