package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/shinobu-server/internal/approval"
	"github.com/rongwang/shinobu-server/internal/draft"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/ownership"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/rongwang/shinobu-server/internal/service"
	"github.com/rongwang/shinobu-server/internal/trade"
	"github.com/rongwang/shinobu-server/internal/utils"
)

// Handler exposes the service over HTTP
type Handler struct {
	svc    service.Service
	logger *utils.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc service.Service, logger *utils.Logger) *Handler {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Handler{svc: svc, logger: logger}
}

// SetupRoutes registers every route on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup", h.SignUp)
	auth.POST("/login", h.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware())

	protected.GET("/me", h.GetProfile)
	protected.PUT("/me/birthday", h.SetBirthday)
	protected.GET("/users/:id", h.GetUser)

	protected.GET("/packs", h.ListPacks)
	protected.POST("/packs/buy", h.BuyPack)

	protected.GET("/waifus", h.ListWaifus)
	protected.GET("/waifus/search", h.FindWaifu)
	protected.POST("/waifus/:id/refund", h.RefundWaifu)
	protected.POST("/waifus/:id/upgrade", h.UpgradeWaifu)

	protected.GET("/trade", h.PendingChanges)
	protected.POST("/trade/money", h.EnqueueMoneyTransfer)
	protected.POST("/trade/waifu", h.EnqueueWaifuTransfer)
	protected.POST("/trade/sign", h.Sign)
	protected.POST("/trade/cancel", h.Cancel)

	protected.GET("/approvals", h.ListApprovals)
	protected.POST("/approvals/:id", h.Vote)
}

func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetProfile(c *gin.Context) {
	resp, err := h.svc.GetProfile(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetBirthday(c *gin.Context) {
	var req models.BirthdayRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.SetBirthday(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := h.pathID(c, "user")
	if !ok {
		return
	}

	resp, err := h.svc.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListPacks(c *gin.Context) {
	resp, err := h.svc.ListPacks(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) BuyPack(c *gin.Context) {
	var req models.BuyPackRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.BuyPack(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListWaifus(c *gin.Context) {
	resp, err := h.svc.ListWaifus(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) FindWaifu(c *gin.Context) {
	resp, err := h.svc.FindWaifu(c.Request.Context(), currentUser(c), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RefundWaifu(c *gin.Context) {
	id, ok := h.pathID(c, "waifu")
	if !ok {
		return
	}
	var seen models.WaifuRef
	if !h.bind(c, &seen) {
		return
	}

	resp, err := h.svc.RefundWaifu(c.Request.Context(), currentUser(c), id, seen)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) UpgradeWaifu(c *gin.Context) {
	id, ok := h.pathID(c, "waifu")
	if !ok {
		return
	}
	var seen models.WaifuRef
	if !h.bind(c, &seen) {
		return
	}

	resp, err := h.svc.UpgradeWaifu(c.Request.Context(), currentUser(c), id, seen)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PendingChanges(c *gin.Context) {
	resp, err := h.svc.PendingChanges(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) EnqueueMoneyTransfer(c *gin.Context) {
	var req models.MoneyTransferRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.EnqueueMoneyTransfer(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) EnqueueWaifuTransfer(c *gin.Context) {
	var req models.WaifuTransferRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.EnqueueWaifuTransfer(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Sign(c *gin.Context) {
	var req models.SignRequest
	// An empty body signs alone
	if c.Request.ContentLength > 0 && !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.Sign(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Cancel(c *gin.Context) {
	resp, err := h.svc.Cancel(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListApprovals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"requests": h.svc.ListApprovals(c.Request.Context(), currentUser(c)),
	})
}

func (h *Handler) Vote(c *gin.Context) {
	var req models.VoteRequest
	if !h.bind(c, &req) {
		return
	}

	resp, err := h.svc.Vote(c.Request.Context(), currentUser(c), c.Param("id"), *req.Approve)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		})
		return false
	}
	return true
}

func (h *Handler) pathID(c *gin.Context, kind string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "VALIDATION_ERROR",
			Message: fmt.Sprintf("Invalid %s ID", kind),
		})
		return 0, false
	}
	return id, true
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins
var errorMappings = []errorMapping{
	{draft.ErrNoSuchPack, http.StatusNotFound, "NO_SUCH_PACK"},
	{draft.ErrEmptyDraftPool, http.StatusServiceUnavailable, "PACK_MISCONFIGURED"},
	{approval.ErrUnknownRequest, http.StatusNotFound, "UNKNOWN_REQUEST"},
	{repository.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{trade.ErrAlreadyInTransaction, http.StatusConflict, "ALREADY_IN_TRANSACTION"},
	{trade.ErrNoTransactionInProgress, http.StatusConflict, "NO_TRANSACTION_IN_PROGRESS"},
	{trade.ErrTransactionDeclined, http.StatusConflict, "TRANSACTION_DECLINED"},
	{ownership.ErrOwnershipChanged, http.StatusConflict, "OWNERSHIP_CHANGED"},
	{repository.ErrAlreadyOwned, http.StatusConflict, "ALREADY_OWNED"},
	{repository.ErrUserExists, http.StatusConflict, "USER_EXISTS"},
	{service.ErrAlreadyQueued, http.StatusConflict, "ALREADY_QUEUED"},
	{service.ErrNotUpgradable, http.StatusConflict, "NOT_UPGRADABLE"},
	{service.ErrBirthdayAlreadySet, http.StatusConflict, "BIRTHDAY_ALREADY_SET"},
	{service.ErrInvalidBirthday, http.StatusBadRequest, "INVALID_BIRTHDAY"},
	{trade.ErrSelfTransfer, http.StatusBadRequest, "SELF_TRANSFER"},
	{trade.ErrNonPositiveAmount, http.StatusBadRequest, "NON_POSITIVE_AMOUNT"},
	{approval.ErrNotAnApprover, http.StatusForbidden, "NOT_AN_APPROVER"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{repository.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
}

// fail writes the response for err. Unknown errors are logged and reported as internal errors.
func (h *Handler) fail(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, models.ErrorResponse{
				Status:  "error",
				Code:    m.code,
				Message: err.Error(),
			})
			return
		}
	}

	h.logger.Error("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Status:  "error",
		Code:    "INTERNAL_ERROR",
		Message: "Something went wrong",
	})
}
