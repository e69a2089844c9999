package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/earningsdesk/transcript-pipeline/internal/domain"
)

// equityUsecaser is the subset of EquityUsecase the handler needs.
type equityUsecaser interface {
	Create(ctx context.Context, e *domain.Equity) (*domain.Equity, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Equity, error)
	AddToWatchlist(ctx context.Context, equityID string) error
	RemoveFromWatchlist(ctx context.Context, equityID string) error
	ListWatchlist(ctx context.Context) ([]*domain.WatchlistItem, error)
}

type EquityHandler struct {
	usecase equityUsecaser
	logger  *slog.Logger
}

func NewEquityHandler(usecase equityUsecaser, logger *slog.Logger) *EquityHandler {
	return &EquityHandler{usecase: usecase, logger: logger.With("component", "equity_handler")}
}

type createEquityRequest struct {
	Symbol     string `json:"symbol" binding:"required"`
	AltCode    string `json:"alt_code"`
	Identifier string `json:"identifier" binding:"required"`
	Name       string `json:"name" binding:"required"`
}

// POST /equities
func (h *EquityHandler) Create(c *gin.Context) {
	var req createEquityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	e, err := h.usecase.Create(c.Request.Context(), &domain.Equity{
		Symbol:     req.Symbol,
		AltCode:    req.AltCode,
		Identifier: req.Identifier,
		Name:       req.Name,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEquityDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("create equity", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusCreated, e)
}

// GET /equities?limit=&offset=
func (h *EquityHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	equities, err := h.usecase.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list equities", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, equities)
}

// POST /equities/:id/watchlist
func (h *EquityHandler) AddToWatchlist(c *gin.Context) {
	if err := h.usecase.AddToWatchlist(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrAlreadyWatchlisted) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("add to watchlist", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /equities/:id/watchlist
func (h *EquityHandler) RemoveFromWatchlist(c *gin.Context) {
	if err := h.usecase.RemoveFromWatchlist(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrNotOnWatchlist) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("remove from watchlist", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /watchlist
func (h *EquityHandler) ListWatchlist(c *gin.Context) {
	items, err := h.usecase.ListWatchlist(c.Request.Context())
	if err != nil {
		h.logger.Error("list watchlist", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, items)
}

// groupUsecaser is the subset of GroupUsecase the handler needs.
type groupUsecaser interface {
	Create(ctx context.Context, g *domain.Group) (*domain.Group, error)
	List(ctx context.Context) ([]*domain.Group, error)
	GetByID(ctx context.Context, id string) (*domain.Group, error)
	SetActive(ctx context.Context, id string, active bool) error
	AddMember(ctx context.Context, groupID, equityID string) error
	RemoveMember(ctx context.Context, groupID, equityID string) error
	ListMembers(ctx context.Context, groupID string) ([]*domain.GroupMembership, error)
}

type GroupHandler struct {
	usecase groupUsecaser
	logger  *slog.Logger
}

func NewGroupHandler(usecase groupUsecaser, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{usecase: usecase, logger: logger.With("component", "group_handler")}
}

type createGroupRequest struct {
	Name               string `json:"name" binding:"required"`
	DeepResearchPrompt string `json:"deep_research_prompt"`
	StockSummaryPrompt string `json:"stock_summary_prompt"`
}

// POST /groups
func (h *GroupHandler) Create(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.usecase.Create(c.Request.Context(), &domain.Group{
		Name:               req.Name,
		DeepResearchPrompt: req.DeepResearchPrompt,
		StockSummaryPrompt: req.StockSummaryPrompt,
		IsActive:           true,
	})
	if err != nil {
		if errors.Is(err, domain.ErrGroupNameConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("create group", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusCreated, g)
}

// GET /groups
func (h *GroupHandler) List(c *gin.Context) {
	groups, err := h.usecase.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list groups", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, groups)
}

// GET /groups/:id
func (h *GroupHandler) GetByID(c *gin.Context) {
	g, err := h.usecase.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("get group", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, g)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// PATCH /groups/:id/active
func (h *GroupHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.usecase.SetActive(c.Request.Context(), c.Param("id"), req.Active); err != nil {
		h.logger.Error("set group active", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

type memberRequest struct {
	EquityID string `json:"equity_id" binding:"required"`
}

// POST /groups/:id/members
func (h *GroupHandler) AddMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.usecase.AddMember(c.Request.Context(), c.Param("id"), req.EquityID); err != nil {
		h.logger.Error("add group member", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /groups/:id/members/:equity_id
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	if err := h.usecase.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("equity_id")); err != nil {
		if errors.Is(err, domain.ErrMembershipNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("remove group member", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /groups/:id/members
func (h *GroupHandler) ListMembers(c *gin.Context) {
	members, err := h.usecase.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("list group members", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, members)
}

// scheduleUsecaser is the subset of ScheduleUsecase the handler needs.
type scheduleUsecaser interface {
	GetByEquityQuarter(ctx context.Context, equityID string, quarter, year int) (*domain.FetchScheduleRow, error)
}

type ScheduleHandler struct {
	usecase scheduleUsecaser
	logger  *slog.Logger
}

func NewScheduleHandler(usecase scheduleUsecaser, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{usecase: usecase, logger: logger.With("component", "schedule_handler")}
}

// GET /equities/:id/schedule?quarter=&year=
func (h *ScheduleHandler) GetByEquityQuarter(c *gin.Context) {
	quarter := queryInt(c, "quarter", 0)
	year := queryInt(c, "year", 0)
	if quarter == 0 || year == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quarter and year are required"})
		return
	}

	row, err := h.usecase.GetByEquityQuarter(c.Request.Context(), c.Param("id"), quarter, year)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleRowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("get schedule row", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, row)
}

// forceUsecaser is the subset of ForceUsecase the handler needs.
type forceUsecaser interface {
	Analyze(ctx context.Context, transcriptID string) error
	Research(ctx context.Context, groupID string, quarter, year int) error
}

type ForceHandler struct {
	usecase forceUsecaser
	logger  *slog.Logger
}

func NewForceHandler(usecase forceUsecaser, logger *slog.Logger) *ForceHandler {
	return &ForceHandler{usecase: usecase, logger: logger.With("component", "force_handler")}
}

// POST /transcripts/:id/analyze
func (h *ForceHandler) Analyze(c *gin.Context) {
	if err := h.usecase.Analyze(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrTranscriptNotAvailable) || errors.Is(err, domain.ErrTranscriptNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("force analyze", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusAccepted)
}

type forceResearchRequest struct {
	Quarter int `json:"quarter" binding:"required"`
	Year    int `json:"year" binding:"required"`
}

// POST /groups/:id/research
func (h *ForceHandler) Research(c *gin.Context) {
	var req forceResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.usecase.Research(c.Request.Context(), c.Param("id"), req.Quarter, req.Year); err != nil {
		h.logger.Error("force research", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusAccepted)
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
