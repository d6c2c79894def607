package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/rm-hull/hideaway/internal/metrics"
	"github.com/rm-hull/hideaway/internal/mobileconfig"
	"github.com/rm-hull/hideaway/internal/profiles"
)

const (
	enrollCacheSize  = 1_000
	maxUploadSize    = 1 << 20
	defaultDeviceTag = "iPhone"
)

// Handlers serves profile downloads, validation and device delivery.
type Handlers struct {
	composer    *profiles.Composer
	delivery    *profiles.Delivery
	enrollment  profiles.EnrollmentOptions
	enrollCache cache.Cache[string, []byte]
	cacheTTL    time.Duration
	logger      *slog.Logger
}

func NewHandlers(delivery *profiles.Delivery, enrollment profiles.EnrollmentOptions, cacheTTL time.Duration, logger *slog.Logger) (*Handlers, error) {
	enrollCache := cache.NewCache[string, []byte]().WithTTL(cacheTTL).WithMaxKeys(enrollCacheSize).WithLRU()
	if err := metrics.RegisterCacheStats("hideaway_enrollment_cache", "Enrollment profile cache statistics", enrollCache); err != nil {
		return nil, errors.Wrap(err, "failed to register cache metrics")
	}

	return &Handlers{
		composer:    delivery.Composer(),
		delivery:    delivery,
		enrollment:  enrollment,
		enrollCache: enrollCache,
		cacheTTL:    cacheTTL,
		logger:      logger.With(slog.String("source", "api")),
	}, nil
}

func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/enroll.mobileconfig", h.Enroll)
	r.GET("/block.mobileconfig", h.Block)
	r.GET("/unblock.mobileconfig", h.Unblock)

	v1 := r.Group("/v1")
	v1.POST("/validate", h.Validate)
	v1.GET("/catalog", h.Catalog)
	v1.POST("/devices/:udid/block", h.DeviceBlock)
	v1.POST("/devices/:udid/unblock", h.DeviceUnblock)
	v1.POST("/devices/:udid/push", h.DevicePush)
}

func (h *Handlers) EnrollCache() cache.Cache[string, []byte] {
	return h.enrollCache
}

func serveProfile(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, mobileconfig.ContentType, data)
}

func encodeAndServe(c *gin.Context, filename string, profile *mobileconfig.Profile) {
	data, err := mobileconfig.EncodeXML(profile)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	serveProfile(c, filename, data)
}

// Enroll serves the SCEP + MDM enrollment profile. Profiles are cached per
// device name so repeated downloads within the TTL get the same document.
func (h *Handlers) Enroll(c *gin.Context) {
	device := c.DefaultQuery("device", defaultDeviceTag)

	data, ok := h.enrollCache.Get(device)
	if !ok {
		profile, err := h.composer.Enrollment(device, h.enrollment)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		data, err = mobileconfig.EncodeXML(profile)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		h.enrollCache.Set(device, data, h.cacheTTL)
	}

	serveProfile(c, "hideaway_enrollment"+mobileconfig.FileExtension, data)
}

func (h *Handlers) composerFor(web *bool) *profiles.Composer {
	if web == nil {
		return h.composer
	}
	return h.composer.WithWebFilter(*web)
}

type blockRequest struct {
	Name   string   `json:"name" form:"name"`
	Apps   []string `json:"apps" form:"app"`
	Preset string   `json:"preset" form:"preset"`
	Web    *bool    `json:"web" form:"web"`
}

func (h *Handlers) compose(req blockRequest) (*mobileconfig.Profile, error) {
	return h.composerFor(req.Web).Compose(req.Name, req.Preset, req.Apps)
}

func (req blockRequest) profileName() string {
	if req.Name != "" {
		return req.Name
	}
	return req.Preset
}

func (h *Handlers) Block(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	profile, err := h.compose(req)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	encodeAndServe(c, mobileconfig.NormalizeName(profile.PayloadDisplayName)+mobileconfig.FileExtension, profile)
}

func (h *Handlers) Unblock(c *gin.Context) {
	profile, err := h.composer.Unblock()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	encodeAndServe(c, profiles.RemovalFileName, profile)
}

// Validate checks an uploaded profile (XML or binary) and replies with the
// report. An invalid profile is still a 200; only unparseable input is a 400.
func (h *Handlers) Validate(c *gin.Context) {
	data, err := readBody(c)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	report, err := mobileconfig.ValidateBytes(data)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	h.composer.ObserveReport(report)
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) Catalog(c *gin.Context) {
	cat := h.composer.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"apps":      cat.Apps(),
		"presets":   cat.Presets(),
		"essential": cat.EssentialApps(),
	})
}

func (h *Handlers) DeviceBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	profile, err := h.compose(req)
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}

	receipt, err := h.delivery.Install(c.Request.Context(), profile, c.Param("udid"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

func (h *Handlers) DeviceUnblock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	identifier := h.composer.Identifier(req.profileName())
	receipt, err := h.delivery.Remove(c.Request.Context(), identifier, c.Param("udid"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, receipt)
}

// DevicePush wakes the device through APNs to check it is reachable.
func (h *Handlers) DevicePush(c *gin.Context) {
	result, err := h.delivery.Ping(c.Request.Context(), c.Param("udid"))
	if err != nil {
		abortWithError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}
