package domain

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidTorrent = errors.New("invalid torrent")

// DefaultTrackers are appended to every magnet derived from a bare info-hash.
var DefaultTrackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://exodus.desync.com:6969/announce",
	"udp://tracker.openbittorrent.com:6969/announce",
	"udp://open.demonii.com:1337/announce",
}

// Torrent is a single search result as reported by one provider.
// Exactly one of InfoHash and MagnetURI is expected to be set.
type Torrent struct {
	ID             int64    `json:"id,omitempty"`
	Name           string   `json:"name"`
	Size           string   `json:"size"`
	Seeders        int      `json:"seeders"`
	Peers          int      `json:"peers"`
	ProviderID     string   `json:"providerId"`
	ProviderName   string   `json:"providerName"`
	UploadDate     string   `json:"uploadDate,omitempty"`
	Category       Category `json:"category,omitempty"`
	DescriptionURL string   `json:"descriptionUrl,omitempty"`
	InfoHash       string   `json:"infoHash,omitempty"`
	MagnetURI      string   `json:"magnetUri,omitempty"`
}

// IsDead reports a torrent nobody is sharing.
func (t Torrent) IsDead() bool {
	return t.Seeders == 0 && t.Peers == 0
}

// Magnet returns the provider-built magnet when present, otherwise derives one
// from the info-hash and DefaultTrackers. The hash is used verbatim.
func (t Torrent) Magnet() string {
	if t.MagnetURI != "" {
		return t.MagnetURI
	}
	if t.InfoHash == "" {
		return ""
	}
	return BuildMagnet(t.InfoHash, DefaultTrackers)
}

// BuildMagnet renders an xt parameter followed by one tr parameter per tracker.
func BuildMagnet(infoHash string, trackers []string) string {
	var b strings.Builder
	b.WriteString("magnet:?xt=urn:btih:")
	b.WriteString(infoHash)
	for _, tracker := range trackers {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(tracker))
	}
	return b.String()
}

func (t Torrent) Validate() error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return errors.Join(ErrInvalidTorrent, errors.New("name is empty"))
	case strings.TrimSpace(t.Size) == "":
		return errors.Join(ErrInvalidTorrent, errors.New("size is empty"))
	case t.Seeders < 0 || t.Peers < 0:
		return errors.Join(ErrInvalidTorrent, errors.New("negative peer count"))
	case t.InfoHash == "" && t.MagnetURI == "":
		return errors.Join(ErrInvalidTorrent, errors.New("neither info-hash nor magnet set"))
	case t.InfoHash != "" && t.MagnetURI != "":
		return errors.Join(ErrInvalidTorrent, errors.New("both info-hash and magnet set"))
	}
	return nil
}
