package backend

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"pjc-registration/internal/apperr"
	"pjc-registration/internal/models"
	"pjc-registration/internal/util"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reg := r.Group("/registration")
	{
		reg.POST("/create", h.CreateRegistration)
	}
	pay := r.Group("/payment")
	{
		pay.POST("/create-order", h.CreateOrder)
		pay.POST("/verify", h.Verify)
	}
}

// NewRouter mounts the API under /api next to a health check.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ts": util.NowISO()})
	})
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"took":   time.Since(start).Round(time.Millisecond),
		}).Info("api request")
	}
}

type CreateOrderReq struct {
	RegistrationID string `json:"registrationId" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	PaymentMethod  string `json:"paymentMethod" binding:"required"`
}

type VerifyReq struct {
	RegistrationID   string `json:"registrationId" binding:"required"`
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	GatewaySignature string `json:"gatewaySignature" binding:"required"`
}

func (h *Handler) CreateRegistration(c *gin.Context) {
	var d models.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "malformed registration: " + err.Error()})
		return
	}
	reg, err := h.service.CreateRegistration(c.Request.Context(), d)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"registrationId": reg.ID,
		"data":           gin.H{"paymentAmount": reg.PaymentAmount},
	})
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	order, err := h.service.CreateOrder(c.Request.Context(), models.OrderRequest{
		RegistrationID: req.RegistrationID,
		Amount:         req.Amount,
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) Verify(c *gin.Context) {
	var req VerifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	err := h.service.Verify(c.Request.Context(), models.Verification{
		RegistrationID:   req.RegistrationID,
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		GatewaySignature: req.GatewaySignature,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "registrationId": req.RegistrationID})
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	body := gin.H{"message": err.Error()}
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		body["errors"] = fields
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		body["message"] = "internal error, please try again later"
	}
	c.JSON(status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrOrderMismatch),
		errors.Is(err, ErrBadSignature):
		return http.StatusBadRequest
	case errors.Is(err, ErrRegistrationNotFound), errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyPaid):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
