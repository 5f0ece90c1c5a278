// Package sniffer identifies image uploads from their leading bytes rather
// than the client-supplied name or content type.
package sniffer

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeSVG  MediaType = "svg"
	TypeICO  MediaType = "ico"
)

const headSize = 512

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

// Ext is the file extension objects of this type are stored under.
func (r Result) Ext() string {
	if r.Type == TypeJPEG {
		return "jpg"
	}
	return string(r.Type)
}

// Detect reads up to 512 bytes from r and classifies them. The bytes read
// are returned so the caller can stitch them back in front of r.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, headSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	switch {
	case len(head) == 0:
		return Result{}, ErrUnknownType
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isICO(head):
		return Result{Type: TypeICO, MIME: "image/x-icon"}, nil
	case isSVG(head):
		return Result{Type: TypeSVG, MIME: "image/svg+xml"}, nil
	}
	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

// isICO matches an ICONDIR header: reserved 0, type 1, at least one image.
func isICO(head []byte) bool {
	return len(head) >= 6 &&
		head[0] == 0 && head[1] == 0 &&
		head[2] == 1 && head[3] == 0 &&
		(head[4] != 0 || head[5] != 0)
}

func isSVG(head []byte) bool {
	trimmed := strings.TrimSpace(strings.TrimPrefix(string(head), "\ufeff"))
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	return (strings.HasPrefix(trimmed, "<?xml") || strings.HasPrefix(trimmed, "<!DOCTYPE svg")) &&
		strings.Contains(strings.ToLower(trimmed), "<svg")
}

func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
