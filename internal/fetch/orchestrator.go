// Package fetch orchestrates the external fetch and transcode tools to
// materialize a media artifact into the cache. Each materialization runs
// inside its own scratch directory under the working dir, which is
// removed wholesale on completion or failure so no intermediate files
// ever leak into the working directory or later responses.
package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/floostack/transcoder/ffmpeg"
	"github.com/google/uuid"
	"github.com/lukasz26671/webaudioprov/internal/cache"
	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/internal/probe"
	"github.com/lukasz26671/webaudioprov/pkg/logger"
)

var log = logger.Get("FetchOrch")

var (
	// ErrToolInvocation indicates the fetch or transcode binary could not
	// be started at all (e.g. missing executable).
	ErrToolInvocation = errors.New("external tool could not be started")

	// ErrToolFailed indicates the fetch or transcode tool ran but exited
	// with a non-zero status or produced no output artifact.
	ErrToolFailed = errors.New("external tool failed")

	// ErrRenameFailed indicates a filesystem error while renaming the raw
	// download to its intermediate name.
	ErrRenameFailed = errors.New("failed to rename intermediate artifact")
)

// Config is the fetch/transcode portion of the service configuration.
type Config struct {
	WorkDir        string `env:"WORK_DIR"`
	FfmpegBinPath  string `env:"FFMPEG_BIN_PATH" env-default:"ffmpeg"`
	FfprobeBinPath string `env:"FFPROBE_BIN_PATH" env-default:"ffprobe"`
	ToolPath       string `env:"FETCH_TOOL_PATH"`
}

type Orchestrator struct {
	config   Config
	toolPath string
	cache    *cache.Store
}

// NewOrchestrator creates an orchestrator which places its finished
// artifacts into the provided cache store. toolPath is the fetch tool
// binary to invoke (see InstallTool).
func NewOrchestrator(config Config, toolPath string, cacheStore *cache.Store) *Orchestrator {
	return &Orchestrator{config: config, toolPath: toolPath, cache: cacheStore}
}

// Materialize downloads the raw media for the item, optionally transcodes
// it to the processed container for the kind, and atomically places the
// final artifact into the cache. The returned path is the cache entry.
//
// Failures are terminal for the request; nothing here is retried.
func (orch *Orchestrator) Materialize(ctx context.Context, metadata *item.Metadata, kind item.Kind, transcode bool) (string, error) {
	scratch := filepath.Join(orch.config.WorkDir, "scratch-"+uuid.NewString())
	if err := os.MkdirAll(scratch, os.ModeDir|os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Emit(logger.WARNING, "Failed to remove scratch dir '%s': %s\n", scratch, err)
		}
	}()

	rawName, err := orch.download(ctx, metadata.ID, kind, scratch)
	if err != nil {
		return "", err
	}

	intermediate := fmt.Sprintf("%s [%s]%s", item.SanitizeTitle(metadata.Title), metadata.ID, filepath.Ext(rawName))
	if err := os.Rename(filepath.Join(scratch, rawName), filepath.Join(scratch, intermediate)); err != nil {
		return "", fmt.Errorf("%w: %s", ErrRenameFailed, err)
	}

	// Unprocessed artifacts keep whatever raw container the fetch tool
	// chose, so their cache key is simply the intermediate name.
	finalName, key := intermediate, intermediate
	if transcode {
		key = item.CacheKey(metadata.Title, metadata.ID, kind, true)
		finalName = key
		if err := orch.transcodeFile(ctx, filepath.Join(scratch, intermediate), filepath.Join(scratch, finalName), kind); err != nil {
			return "", err
		}
	}

	placed, err := orch.cache.Place(scratch, finalName, key)
	if err != nil {
		return "", err
	}

	log.Emit(logger.SUCCESS, "Materialized %s (%s) -> %s\n", metadata.ID, kind, key)
	return placed, nil
}

// download runs the fetch tool for the item into the scratch directory,
// using an output name templated on the item ID, and returns the name of
// the raw file it produced.
func (orch *Orchestrator) download(ctx context.Context, id item.ID, kind item.Kind, scratch string) (string, error) {
	args := []string{
		"--no-playlist",
		"--socket-timeout", fmt.Sprint(probe.SocketTimeoutSeconds),
		"-f", kind.FormatSpec(),
		"-o", filepath.Join(scratch, fmt.Sprintf("[%s].%%(ext)s", id)),
		id.WatchURL(),
	}

	cmd := exec.CommandContext(ctx, orch.toolPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolInvocation, err)
	}

	log.Emit(logger.INFO, "Downloading item %s (%s)\n", id, kind)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolInvocation, err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		log.Emit(logger.VERBOSE, "[fetch-tool] %s\n", scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("%w: fetch tool: %s: %s", ErrToolFailed, err, firstLine(stderr.String()))
	}

	return findRawDownload(scratch, id)
}

// findRawDownload locates the file the fetch tool wrote for the item.
// The output template fixes the name prefix but the extension is chosen
// by the tool.
func findRawDownload(scratch string, id item.ID) (string, error) {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return "", fmt.Errorf("%w: cannot inspect scratch dir: %s", ErrToolFailed, err)
	}

	prefix := fmt.Sprintf("[%s]", id)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			return entry.Name(), nil
		}
	}

	return "", fmt.Errorf("%w: fetch tool exited cleanly but produced no artifact for %s", ErrToolFailed, id)
}

// transcodeFile converts the intermediate file to the processed container
// for the kind: constant-quality MP3 for audio, H.264 MP4 for video. The
// tool's progress stream is drained purely for diagnostic logging.
func (orch *Orchestrator) transcodeFile(ctx context.Context, inputPath string, outputPath string, kind item.Kind) error {
	overwrite := true
	opts := &ffmpeg.Options{Overwrite: &overwrite}

	if kind == item.Video {
		videoCodec, preset, format := "libx264", "veryfast", "mp4"
		opts.VideoCodec = &videoCodec
		opts.Preset = &preset
		opts.OutputFormat = &format
		opts.ExtraArgs = map[string]interface{}{"-crf": 23}
	} else {
		audioCodec, format := "libmp3lame", "mp3"
		opts.AudioCodec = &audioCodec
		opts.OutputFormat = &format
		opts.ExtraArgs = map[string]interface{}{"-b:a": "192k"}
	}

	transcoderInstance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   orch.config.FfmpegBinPath,
			FfprobeBinPath:  orch.config.FfprobeBinPath,
		}).
		Input(inputPath).
		Output(outputPath).
		WithContext(&ctx)

	log.Emit(logger.INFO, "Transcoding '%s' -> '%s'\n", filepath.Base(inputPath), filepath.Base(outputPath))
	progressChannel, err := transcoderInstance.Start(opts)
	if err != nil {
		return fmt.Errorf("%w: transcode tool: %s", ErrToolInvocation, parseFfmpegError(err))
	}

	for prog := range progressChannel {
		log.Emit(logger.VERBOSE, "[transcode-tool] progress=%.2f%% speed=%s\n", prog.GetProgress(), prog.GetSpeed())
	}

	// The progress channel closing is not proof of success; a failed run
	// leaves no (or an empty) output file behind.
	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		return fmt.Errorf("%w: transcode tool produced no output for '%s'", ErrToolFailed, filepath.Base(inputPath))
	}

	return nil
}

// parseFfmpegError tries to pick the embedded message JSON out of the
// huge startup log the transcoder library returns on failure.
func parseFfmpegError(err error) error {
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		return errors.New(groups[1])
	}

	if exception, ok := out["error"].(map[string]interface{}); ok {
		if message, ok := exception["string"].(string); ok {
			return errors.New(message)
		}
	}

	return err
}

func firstLine(output string) string {
	trimmed := strings.TrimSpace(output)
	if idx := strings.IndexByte(trimmed, '\n'); idx != -1 {
		return trimmed[:idx]
	}

	return trimmed
}
