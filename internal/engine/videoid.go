package engine

import (
	"encoding/base64"
	"net/url"
	"path"
	"strings"
)

const videoIDLength = 11

// ExtractVideoID extracts the video id from a watch URL, a short link,
// or a bare id. Returns "" when nothing id-shaped is found.
func ExtractVideoID(urlOrID string) string {
	// A video id is a urlsafe-base64 encoding of a 64-bit integer, so a
	// bare 11-character input that decodes to one is returned as-is.
	if len(urlOrID) == videoIDLength {
		if raw, err := base64.URLEncoding.DecodeString(urlOrID + "="); err == nil && len(raw) == 8 {
			return urlOrID
		}
	}

	u, err := url.Parse(urlOrID)
	if err != nil {
		return ""
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtu.be":
		// https://youtu.be/dQw4w9WgXcQ
		return strings.TrimPrefix(u.Path, "/")
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		switch {
		case strings.HasPrefix(u.Path, "/shorts/") || strings.HasPrefix(u.Path, "/live/"):
			// https://youtube.com/live/dQw4w9WgXcQ
			return path.Base(u.Path)
		case u.Path == "/watch":
			// https://youtube.com/watch?v=dQw4w9WgXcQ
			return u.Query().Get("v")
		}
	}
	return ""
}
