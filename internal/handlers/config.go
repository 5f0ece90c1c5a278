package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"hfcloud/console/internal/branding"
	"hfcloud/console/internal/models"
)

const (
	minLogoSize = 16
	maxLogoSize = 128
)

func (h HandlerSet) GetConfig(c *gin.Context) {
	cfg, source := h.config.Load(c.Request.Context())
	ok(c, http.StatusOK, gin.H{
		"config": cfg,
		"source": source,
	})
}

func (h HandlerSet) UpdateConfig(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		badRequest(c, "unreadable request body")
		return
	}

	var patch models.ConfigPatch
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		badRequest(c, "invalid configuration: "+err.Error())
		return
	}
	if patch.Empty() {
		badRequest(c, "no configuration fields given")
		return
	}
	if patch.LogoSize != nil && (*patch.LogoSize < minLogoSize || *patch.LogoSize > maxLogoSize) {
		badRequest(c, "logoSize must be between 16 and 128")
		return
	}

	cfg, err := h.config.Apply(c.Request.Context(), principal(c).User, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"config": cfg})
}

func (h HandlerSet) UploadBranding(c *gin.Context) {
	if h.branding == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "object storage is not configured"})
		return
	}

	kind := branding.Kind(c.Param("kind"))
	if !kind.Valid() {
		h.fail(c, branding.ErrUnknownKind)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.branding.MaxSize() {
		h.fail(c, branding.ErrTooLarge)
		return
	}

	result, err := h.branding.Upload(c.Request.Context(), principal(c).User, kind, file)
	if err != nil {
		if errors.Is(err, branding.ErrTooLarge) || errors.Is(err, branding.ErrUnsupportedImage) {
			h.log.Info().Err(err).Str("filename", header.Filename).Msg("branding upload rejected")
		}
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"asset": result})
}
