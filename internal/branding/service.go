// Package branding stores logo and favicon uploads in object storage and
// points the system configuration at them.
package branding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/rs/zerolog"

	"hfcloud/console/internal/ids"
	"hfcloud/console/internal/media/sniffer"
	"hfcloud/console/internal/media/svg"
	"hfcloud/console/internal/models"
	"hfcloud/console/internal/permissions"
	"hfcloud/console/internal/sysconfig"
)

const DefaultMaxSize = 1 << 20

var (
	ErrUnknownKind      = errors.New("unknown branding asset kind")
	ErrTooLarge         = errors.New("file too large")
	ErrEmptyFile        = errors.New("empty file")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

type Kind string

const (
	KindLogo    Kind = "logo"
	KindFavicon Kind = "favicon"
)

func (k Kind) Valid() bool {
	return k == KindLogo || k == KindFavicon
}

var allowedTypes = map[Kind]map[sniffer.MediaType]bool{
	KindLogo: {
		sniffer.TypePNG:  true,
		sniffer.TypeJPEG: true,
		sniffer.TypeGIF:  true,
		sniffer.TypeWEBP: true,
		sniffer.TypeSVG:  true,
		sniffer.TypeICO:  true,
	},
	KindFavicon: {
		sniffer.TypePNG: true,
		sniffer.TypeSVG: true,
		sniffer.TypeICO: true,
	},
}

// ObjectWriter is the slice of object storage the service needs.
type ObjectWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

type Service struct {
	objects ObjectWriter
	config  *sysconfig.Resolver
	maxSize int64
	log     zerolog.Logger
}

func NewService(objects ObjectWriter, resolver *sysconfig.Resolver, maxSize int64, log zerolog.Logger) *Service {
	if objects == nil || resolver == nil {
		panic("branding: nil dependency")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{
		objects: objects,
		config:  resolver,
		maxSize: maxSize,
		log:     log,
	}
}

func (s *Service) MaxSize() int64 {
	return s.maxSize
}

type Result struct {
	Kind   Kind                `json:"kind"`
	URL    string              `json:"url"`
	MIME   string              `json:"mime"`
	Config models.SystemConfig `json:"config"`
}

// Upload stores the image read from r and saves its URL as the logo or
// favicon. The configuration save is admin-gated like any other.
func (s *Service) Upload(ctx context.Context, actor models.User, kind Kind, r io.Reader) (Result, error) {
	if !permissions.CanSaveConfig(actor.Role) {
		return Result{}, fmt.Errorf("%w: only administrators can change branding", permissions.ErrForbidden)
	}
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return Result{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return Result{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxSize)
	}
	if len(data) == 0 {
		return Result{}, ErrEmptyFile
	}

	detected, err := sniffer.DetectHead(data[:min(len(data), 512)])
	if err != nil || !allowedTypes[kind][detected.Type] {
		return Result{}, fmt.Errorf("%w for %s", ErrUnsupportedImage, kind)
	}

	if detected.Type == sniffer.TypeSVG {
		clean, err := svg.Sanitize(data)
		if err != nil {
			return Result{}, fmt.Errorf("sanitize svg: %w", err)
		}
		data = clean
	}

	key := path.Join("branding", string(kind), fmt.Sprintf("%s.%s", ids.New(), detected.Ext()))
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), detected.MIME); err != nil {
		return Result{}, err
	}
	url := s.objects.PublicURL(key)

	patch := models.ConfigPatch{}
	switch kind {
	case KindLogo:
		patch.LogoURL = &url
	case KindFavicon:
		patch.FaviconURL = &url
	}

	cfg, err := s.config.Apply(ctx, actor, patch)
	if err != nil {
		return Result{}, err
	}

	s.log.Info().
		Str("kind", string(kind)).
		Str("key", key).
		Int("bytes", len(data)).
		Str("user_id", actor.ID).
		Msg("branding asset uploaded")

	return Result{Kind: kind, URL: url, MIME: detected.MIME, Config: cfg}, nil
}
