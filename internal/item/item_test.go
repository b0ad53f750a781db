package item_test

import (
	"testing"

	"github.com/lukasz26671/webaudioprov/internal/item"
	"github.com/stretchr/testify/assert"
)

func Test_Resolve_ValidReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary   string
		reference string
		expected  item.ID
	}{
		{"plain watch URL", "https://www.youtube.com/watch?v=PpjdTwQwWWY", "PpjdTwQwWWY"},
		{"URL with trailing params", "https://www.youtube.com/watch?v=JIvKgSyvtxI&fbclid=abcdssf", "JIvKgSyvtxI"},
		{"ID terminated by space", "https://www.youtube.com/watch?v=JIvKgSyvtxI share this", "JIvKgSyvtxI"},
		{"ID terminated by CR", "https://www.youtube.com/watch?v=JIvKgSyvtxI\rrest", "JIvKgSyvtxI"},
		{"ID terminated by LF", "https://www.youtube.com/watch?v=JIvKgSyvtxI\nrest", "JIvKgSyvtxI"},
		{"bare ID with no marker", "PpjdTwQwWWY", "PpjdTwQwWWY"},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			id, err := item.Resolve(test.reference)
			assert.NoError(t, err)
			assert.Equal(t, test.expected, id)
		})
	}
}

func Test_Resolve_InvalidReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary   string
		reference string
	}{
		{"too short", "https://www.youtube.com/watch?v=gibb"},
		{"too long", "https://www.youtube.com/watch?v=gibberishtoofuckinglong"},
		{"empty after marker", "https://www.youtube.com/watch?v=&other=1"},
		{"empty reference", ""},
		{"bare string of wrong length", "notelevench"},
	}

	for _, test := range tests {
		t.Run(test.summary, func(t *testing.T) {
			_, err := item.Resolve(test.reference)
			assert.ErrorIs(t, err, item.ErrInvalidReference)
		})
	}
}

func Test_Resolve_UsesFirstMarker(t *testing.T) {
	t.Parallel()

	id, err := item.Resolve("https://example.com/?v=PpjdTwQwWWY&v=aaaaaaaaaaa")
	assert.NoError(t, err)
	assert.Equal(t, item.ID("PpjdTwQwWWY"), id)
}

func Test_SanitizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		given    string
		expected string
	}{
		{"Plain Title", "Plain Title"},
		{"AC/DC | Live", "ACDC  Live"},
		{"Füße méandre", "Fe mandre"},
		{"  padded  ", "padded"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, item.SanitizeTitle(test.given))
	}
}

func Test_CacheKey_Derivation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Some Song [PpjdTwQwWWY].mp3", item.CacheKey("Some Song", "PpjdTwQwWWY", item.Audio, true))
	assert.Equal(t, "Some Song [PpjdTwQwWWY].mp4", item.CacheKey("Some Song", "PpjdTwQwWWY", item.Video, true))
	assert.Equal(t, "Some Song [PpjdTwQwWWY].opus", item.CacheKey("Some Song", "PpjdTwQwWWY", item.Audio, false))
	assert.Equal(t, "Some Song [PpjdTwQwWWY].webm", item.CacheKey("Some Song", "PpjdTwQwWWY", item.Video, false))
}

func Test_KindForFormat(t *testing.T) {
	t.Parallel()

	kind, err := item.KindForFormat("mp3")
	assert.NoError(t, err)
	assert.Equal(t, item.Audio, kind)

	kind, err = item.KindForFormat("mp4")
	assert.NoError(t, err)
	assert.Equal(t, item.Video, kind)

	_, err = item.KindForFormat("flac")
	assert.Error(t, err)
}
