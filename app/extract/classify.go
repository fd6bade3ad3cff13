package extract

import (
	"net/url"
	"strings"
)

var videoHosts = []string{
	"youtube.com",
	"youtu.be",
	"m.youtube.com",
}

var socialHosts = []string{
	"x.com",
	"twitter.com",
	"mobile.twitter.com",
	"t.co",
}

var podcastHosts = []string{
	"podcasts.apple.com",
	"open.spotify.com",
	"overcast.fm",
	"pocketcasts.com",
}

var audioSuffixes = []string{".mp3", ".m4a", ".wav", ".ogg", ".aac", ".flac"}

// Classify routes a URL to exactly one content kind. Rules are ordered: video
// hosts first, then social hosts, then the podcast/audio heuristic, else
// article.
func Classify(rawURL string) Kind {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return KindArticle
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.ToLower(u.Path)

	for _, h := range videoHosts {
		if host == h {
			// Spotify episodes land in the podcast branch below.
			return KindVideo
		}
	}

	for _, h := range socialHosts {
		if host == h {
			return KindSocial
		}
	}

	for _, suffix := range audioSuffixes {
		if strings.HasSuffix(path, suffix) {
			return KindPodcast
		}
	}
	for _, h := range podcastHosts {
		if host == h {
			if host == "open.spotify.com" && !strings.HasPrefix(path, "/episode") && !strings.HasPrefix(path, "/show") {
				continue
			}
			return KindPodcast
		}
	}

	return KindArticle
}
