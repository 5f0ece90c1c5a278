package sniffer

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	tests := []struct {
		name string
		head []byte
		want MediaType
		ext  string
	}{
		{name: "png", head: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0}, want: TypePNG, ext: "png"},
		{name: "jpeg", head: []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10}, want: TypeJPEG, ext: "jpg"},
		{name: "gif", head: []byte("GIF89a\x01\x00"), want: TypeGIF, ext: "gif"},
		{name: "webp", head: []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), want: TypeWEBP, ext: "webp"},
		{name: "ico", head: []byte{0, 0, 1, 0, 1, 0, 16, 16}, want: TypeICO, ext: "ico"},
		{name: "svg", head: []byte(`  <svg xmlns="http://www.w3.org/2000/svg"></svg>`), want: TypeSVG, ext: "svg"},
		{name: "svg with prolog", head: []byte(`<?xml version="1.0"?><svg></svg>`), want: TypeSVG, ext: "svg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectHead(tt.head)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Type)
			require.Equal(t, tt.ext, got.Ext())
		})
	}
}

func TestDetectHead_Unknown(t *testing.T) {
	for _, head := range [][]byte{
		nil,
		[]byte("plain text"),
		[]byte(`<?xml version="1.0"?><rss></rss>`),
		{0, 0, 1, 0, 0, 0},
	} {
		_, err := DetectHead(head)
		require.ErrorIs(t, err, ErrUnknownType)
	}
}

func TestDetect_ReturnsConsumedHead(t *testing.T) {
	body := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{1}, 1000)...)
	r := bytes.NewReader(body)

	result, head, err := Detect(r)
	require.NoError(t, err)
	require.Equal(t, TypePNG, result.Type)
	require.Len(t, head, 512)

	rest, err := io.ReadAll(io.MultiReader(bytes.NewReader(head), r))
	require.NoError(t, err)
	require.Equal(t, body, rest)
}

func TestMimeTypeFromHTTP(t *testing.T) {
	h := http.Header{}
	require.Equal(t, "", MimeTypeFromHTTP(h))
	h.Set("Content-Type", "image/png; charset=binary")
	require.Equal(t, "image/png", MimeTypeFromHTTP(h))
}
