// Package probe wraps the external fetch tool in metadata-only mode. A
// probe never downloads media; it asks the tool to dump its structured
// metadata for an item and defensively decodes the result.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

var log = logger.Get("MetadataProbe")

// ErrProbeFailed wraps every failure mode of a metadata probe: the tool
// failing to start, exiting non-zero, or emitting output that is missing
// required fields. Callers treat a failed probe as a hard stop; probes
// are never retried.
var ErrProbeFailed = errors.New("metadata probe failed")

// SocketTimeoutSeconds is the fixed socket timeout passed to the fetch
// tool for both probes and downloads.
const SocketTimeoutSeconds = 15

type Prober struct {
	toolPath string
}

func New(toolPath string) *Prober {
	return &Prober{toolPath: toolPath}
}

// Probe invokes the fetch tool against the canonical URL for the item,
// requesting the best available format for the kind, and returns the
// decoded metadata. No media is downloaded.
func (prober *Prober) Probe(ctx context.Context, id item.ID, kind item.Kind) (*item.Metadata, error) {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--socket-timeout", fmt.Sprint(SocketTimeoutSeconds),
		"-f", kind.FormatSpec(),
		id.WatchURL(),
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, prober.toolPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("Probing item %s (%s)\n", id, kind)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrProbeFailed, err, firstLine(stderr.String()))
	}

	metadata, err := ParseMetadata(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	if metadata.ID == "" {
		metadata.ID = id
	}

	log.Debugf("Probe of %s complete: title='%s' duration=%.2fs\n", id, metadata.Title, metadata.DurationSecs)
	return metadata, nil
}

// rawMetadata mirrors the subset of the fetch tool's JSON dump that the
// service consumes. Decoding is weakly typed because the tool's schema
// is not under our control.
type rawMetadata struct {
	ID           string         `mapstructure:"id"`
	Title        string         `mapstructure:"title"`
	Channel      string         `mapstructure:"channel"`
	Uploader     string         `mapstructure:"uploader"`
	Description  string         `mapstructure:"description"`
	Duration     float64        `mapstructure:"duration"`
	URL          string         `mapstructure:"url"`
	AgeLimit     int            `mapstructure:"age_limit"`
	Availability string         `mapstructure:"availability"`
	Thumbnails   []rawThumbnail `mapstructure:"thumbnails"`
}

type rawThumbnail struct {
	URL    string `mapstructure:"url"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
}

// ParseMetadata decodes the tool's JSON dump. Every field is treated as
// fallible; a dump without a title or duration is a probe failure rather
// than a crash further down the pipeline.
func ParseMetadata(raw []byte) (*item.Metadata, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: tool output is not valid JSON: %s", ErrProbeFailed, err)
	}

	for _, required := range []string{"title", "duration"} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("%w: tool output is missing required field '%s'", ErrProbeFailed, required)
		}
	}

	var decoded rawMetadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProbeFailed, err)
	}

	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("%w: tool output does not match expected schema: %s", ErrProbeFailed, err)
	}

	if strings.TrimSpace(decoded.Title) == "" {
		return nil, fmt.Errorf("%w: tool output has an empty title", ErrProbeFailed)
	}

	channel := decoded.Channel
	if channel == "" {
		channel = decoded.Uploader
	}

	thumbnails := make([]item.Thumbnail, 0, len(decoded.Thumbnails))
	for _, thumb := range decoded.Thumbnails {
		if thumb.URL == "" {
			continue
		}

		thumbnails = append(thumbnails, item.Thumbnail{URL: thumb.URL, Width: thumb.Width, Height: thumb.Height})
	}

	return &item.Metadata{
		ID:            item.ID(decoded.ID),
		Title:         decoded.Title,
		Channel:       channel,
		Description:   decoded.Description,
		DurationSecs:  decoded.Duration,
		URL:           decoded.URL,
		AgeRestricted: decoded.AgeLimit > 0,
		Private:       decoded.Availability == "private",
		Thumbnails:    thumbnails,
	}, nil
}

func firstLine(output string) string {
	if idx := strings.IndexByte(output, '\n'); idx != -1 {
		return output[:idx]
	}

	return output
}
