package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/domain/clone"
	"github.com/GriffinCanCode/webclone/internal/domain/health"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
	"github.com/GriffinCanCode/webclone/internal/shared/utils"
)

// Cloner runs one clone request
type Cloner interface {
	Clone(ctx context.Context, req types.CloneRequest, observe clone.StageObserver) types.CloneResult
}

// HealthReporter produces the health report
type HealthReporter interface {
	Status(ctx context.Context) health.Report
}

// CloneResponse is the body of a successful clone
type CloneResponse struct {
	ClonedHTML  string `json:"cloned_html"`
	OriginalURL string `json:"original_url"`
	CloneID     string `json:"clone_id"`
	Message     string `json:"message"`
}

// Handlers contains all HTTP handlers
type Handlers struct {
	cloner       Cloner
	health       HealthReporter
	maxBodyBytes int64
	log          *logging.Logger
}

// NewHandlers creates a new handler set. maxBodyBytes bounds the POST /clone
// body; zero means 16 KiB.
func NewHandlers(cloner Cloner, reporter HealthReporter, maxBodyBytes int64, log *logging.Logger) *Handlers {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 16 << 10
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		cloner:       cloner,
		health:       reporter,
		maxBodyBytes: maxBodyBytes,
		log:          log.Named("http"),
	}
}

// Register mounts the routes on r
func (h *Handlers) Register(r gin.IRoutes) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/clone", h.Clone)
}

// Root returns the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Website Cloner API",
		"status":  "running",
	})
}

// Health reports service health
func (h *Handlers) Health(c *gin.Context) {
	report := h.health.Status(c.Request.Context())

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Clone clones the page named in the request body
func (h *Handlers) Clone(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var req types.CloneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Detail: "request body is too large",
				Kind:   types.KindInvalidURL,
			})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Detail: "request body must be a JSON object with a \"url\" string",
			Kind:   types.KindInvalidURL,
		})
		return
	}

	// Scheme-less input is treated as https
	req.RawURL = utils.EnsureScheme(req.RawURL)

	result := h.cloner.Clone(c.Request.Context(), req, nil)
	c.Header("X-Clone-ID", result.ID)

	if !result.OK() {
		kind := result.Kind()
		if kind == types.KindInternal {
			h.log.Error("Clone failed", logging.CloneID(result.ID), zap.String("detail", result.Failure.Message))
		}
		c.JSON(StatusFor(kind), ErrorResponse{
			Detail:  result.Failure.Message,
			Kind:    kind,
			CloneID: result.ID,
		})
		return
	}

	c.JSON(http.StatusOK, CloneResponse{
		ClonedHTML:  result.Cloned.HTML,
		OriginalURL: req.RawURL,
		CloneID:     result.ID,
		Message:     "Website cloned successfully",
	})
}
