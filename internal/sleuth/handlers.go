package sleuth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/cryptosleuth/internal/logging"
	"github.com/mbd888/cryptosleuth/internal/validation"
)

// Handler provides HTTP endpoints for tracing and reporting.
type Handler struct {
	service *Service
}

// NewHandler creates a new sleuth handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the /api routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/trace", h.TraceWallet)
	r.POST("/report", h.GenerateReport)
	r.GET("/rules", h.ListRules)

	wallets := r.Group("/wallets/:address", validation.AddressParamMiddleware())
	wallets.GET("", h.GetWallet)
	wallets.GET("/reports", h.ListReports)
}

// TraceWallet handles POST /api/trace
func (h *Handler) TraceWallet(c *gin.Context) {
	req, ok := bindWalletRequest(c)
	if !ok {
		return
	}

	result, err := h.service.Trace(c.Request.Context(), req.Address, req.Chain)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GenerateReport handles POST /api/report
func (h *Handler) GenerateReport(c *gin.Context) {
	req, ok := bindWalletRequest(c)
	if !ok {
		return
	}

	report, err := h.service.Report(c.Request.Context(), req.Address, req.Chain)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// ListRules handles GET /api/rules
func (h *Handler) ListRules(c *gin.Context) {
	rules := h.service.Rules()
	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

// GetWallet handles GET /api/wallets/:address
func (h *Handler) GetWallet(c *gin.Context) {
	rec, err := h.service.LatestWallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"wallet": rec})
}

// ListReports handles GET /api/wallets/:address/reports
func (h *Handler) ListReports(c *gin.Context) {
	limit := DefaultReportLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	reports, err := h.service.ListReports(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reports": reports,
		"count":   len(reports),
	})
}

func bindWalletRequest(c *gin.Context) (*WalletRequest, bool) {
	var req WalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return nil, false
	}

	if errs := validation.Validate(
		validation.Required("address", req.Address),
		validation.MaxLength("chain", req.Chain, validation.MaxChainLength),
	); len(errs) > 0 {
		message := errs.Error()
		if errs[0].Field == "address" {
			message = "Address is required"
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": message,
			"details": errs,
		})
		return nil, false
	}

	return &req, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAddressRequired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Address is required",
		})
	case errors.Is(err, ErrWalletNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No scored wallet found for this address",
		})
	case errors.Is(err, ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Persistence is not configured",
		})
	default:
		logging.L(c.Request.Context()).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Failed to read from the document store",
		})
	}
}
