// Package item holds the core domain types for the retrieval pipeline:
// media item identifiers, the audio/video kind selection and the cache
// key naming scheme used by the on-disk store.
package item

import (
	"errors"
	"fmt"
	"strings"
)

// IDLength is the exact length of a canonical item identifier.
const IDLength = 11

var ErrInvalidReference = errors.New("reference does not contain a valid item ID")

// ID is the canonical 11-character identifier of a media item. It is
// treated as an opaque token; the upstream fetch tool is the source of
// truth for whether an ID actually exists.
type ID string

// WatchURL returns the canonical upstream URL for this item.
func (id ID) WatchURL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", string(id))
}

// Resolve extracts the item ID from an arbitrary reference string, which
// is typically a full watch URL but may be a bare ID.
//
// The scan starts after the first 'v=' marker; when no marker is present
// the reference is scanned from its own start (a deliberate permissive
// fallback so a bare ID resolves to itself). Characters are consumed up
// to the first '&', space or line terminator, and the result must be
// exactly IDLength characters.
func Resolve(reference string) (ID, error) {
	start := 0
	if idx := strings.Index(reference, "v="); idx != -1 {
		start = idx + 2
	}

	end := start
	for end < len(reference) {
		c := reference[end]
		if c == '&' || c == ' ' || c == '\r' || c == '\n' {
			break
		}
		end++
	}

	candidate := reference[start:end]
	if len(candidate) != IDLength {
		return "", fmt.Errorf("%w: candidate '%s' is %d characters, want %d", ErrInvalidReference, candidate, len(candidate), IDLength)
	}

	return ID(candidate), nil
}

// Kind selects the media variant a request is for. It drives the format
// spec passed to the fetch tool, the duration ceiling applied, the output
// extension and the response content type.
type Kind int

const (
	Audio Kind = iota
	Video
)

func (kind Kind) String() string {
	if kind == Video {
		return "video"
	}

	return "audio"
}

// FormatSpec returns the fetch-tool format selector for this kind.
func (kind Kind) FormatSpec() string {
	if kind == Video {
		return "bestvideo+bestaudio"
	}

	return "bestaudio"
}

// Ext returns the artifact extension for this kind. Processed artifacts
// have been run through the transcode tool; unprocessed ones keep the
// raw container the fetch tool emitted.
func (kind Kind) Ext(processed bool) string {
	if processed {
		if kind == Video {
			return "mp4"
		}

		return "mp3"
	}

	if kind == Video {
		return "webm"
	}

	return "opus"
}

// ContentType returns the HTTP content type of a processed artifact.
func (kind Kind) ContentType() string {
	if kind == Video {
		return "video/mp4"
	}

	return "audio/mpeg"
}

// KindForFormat maps the 'format' query parameter of the HTTP surface
// to a Kind. Only mp3 and mp4 are recognised.
func KindForFormat(format string) (Kind, error) {
	switch format {
	case "mp3":
		return Audio, nil
	case "mp4":
		return Video, nil
	}

	return Audio, fmt.Errorf("unrecognised format '%s': want mp3 or mp4", format)
}

// SanitizeTitle reduces an upstream title to a filesystem-safe ASCII
// string. Non-ASCII runes and the path-hostile '/' and '|' characters
// are stripped entirely.
func SanitizeTitle(title string) string {
	var builder strings.Builder
	builder.Grow(len(title))
	for _, r := range title {
		if r > 127 || r == '/' || r == '|' {
			continue
		}

		builder.WriteRune(r)
	}

	return strings.TrimSpace(builder.String())
}

// CacheKey derives the deterministic on-disk name of a materialized
// artifact: 'sanitized-title [ID].ext'. Title instability across probes
// produces distinct keys; see the documented limitation in DESIGN.md.
func CacheKey(title string, id ID, kind Kind, processed bool) string {
	return fmt.Sprintf("%s [%s].%s", SanitizeTitle(title), id, kind.Ext(processed))
}

// Metadata is the per-request probe result for an item. It is produced
// fresh on every request and never cached independently of the
// materialized file.
type Metadata struct {
	ID            ID
	Title         string
	Channel       string
	Description   string
	DurationSecs  float64
	URL           string
	AgeRestricted bool
	Private       bool
	Thumbnails    []Thumbnail
}

// Thumbnail is a single upstream thumbnail variant.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}
