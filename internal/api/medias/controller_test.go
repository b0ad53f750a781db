package medias_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/lukasz26671/webaudioprov/internal/api/medias"
	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/lukasz26671/webaudioprov/internal/pipeline"
	"github.com/lukasz26671/webaudioprov/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	metadata    *item.Metadata
	redirectURL string
	artifact    *pipeline.Artifact
	err         error
}

func (stub *stubService) Info(_ context.Context, _ string) (*item.Metadata, error) {
	return stub.metadata, stub.err
}

func (stub *stubService) ResolveRedirect(_ context.Context, _ string) (string, error) {
	return stub.redirectURL, stub.err
}

func (stub *stubService) MaterializeForServing(_ context.Context, _ string, _ item.Kind) (*pipeline.Artifact, error) {
	return stub.artifact, stub.err
}

func newTestServer(service medias.Service) *echo.Echo {
	ec := echo.New()
	medias.New(service).SetRoutes(ec.Group(""))
	return ec
}

func perform(ec *echo.Echo, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	ec.ServeHTTP(rec, req)
	return rec
}

func Test_Download_ServesAttachment(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Some Song [PpjdTwQwWWY].mp3")
	require.NoError(t, os.WriteFile(path, []byte("processed-media"), 0o644))

	service := &stubService{artifact: &pipeline.Artifact{
		Path: path,
		Key:  "Some Song [PpjdTwQwWWY].mp3",
		Kind: item.Audio,
	}}

	rec := perform(newTestServer(service), "/download_id/PpjdTwQwWWY?format=mp3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `attachment`)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "Some Song [PpjdTwQwWWY].mp3")
	assert.Equal(t, "processed-media", rec.Body.String())
}

func Test_Download_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	rec := perform(newTestServer(&stubService{}), "/download_id/PpjdTwQwWWY?format=flac")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Download_UnresolvableReference(t *testing.T) {
	t.Parallel()

	service := &stubService{err: item.ErrInvalidReference}
	rec := perform(newTestServer(service), "/download_id/gibberish")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_Download_DurationExceeded(t *testing.T) {
	t.Parallel()

	service := &stubService{err: &policy.DurationExceededError{
		Kind:            item.Video,
		DurationSeconds: 301,
		LimitMinutes:    5,
	}}

	rec := perform(newTestServer(service), "/download_id/PpjdTwQwWWY?format=mp4")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Download_ToolFailure(t *testing.T) {
	t.Parallel()

	service := &stubService{err: errors.New("tool exploded")}
	rec := perform(newTestServer(service), "/download_id/PpjdTwQwWWY")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func Test_Stream_RedirectsAudio(t *testing.T) {
	t.Parallel()

	service := &stubService{redirectURL: "https://upstream.example/media/direct"}
	rec := perform(newTestServer(service), "/stream_id/PpjdTwQwWWY")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://upstream.example/media/direct", rec.Header().Get(echo.HeaderLocation))
}

func Test_Stream_VideoNotAllowed(t *testing.T) {
	t.Parallel()

	rec := perform(newTestServer(&stubService{}), "/stream_id/PpjdTwQwWWY?format=mp4")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func Test_Info_ReturnsMetadata(t *testing.T) {
	t.Parallel()

	service := &stubService{metadata: &item.Metadata{
		ID:           "PpjdTwQwWWY",
		Title:        "Some Song",
		Channel:      "Some Channel",
		DurationSecs: 215.5,
	}}

	rec := perform(newTestServer(service), "/info_id/PpjdTwQwWWY")
	require.Equal(t, http.StatusOK, rec.Code)

	var dto medias.InfoDto
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, "PpjdTwQwWWY", dto.Id)
	assert.Equal(t, "Some Song", dto.Title)
	assert.Equal(t, 215.5, dto.DurationSecs)
}
