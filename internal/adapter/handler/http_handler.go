package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const (
	headerUserID         = "X-User-ID"
	headerUserRole       = "X-User-Role"
	headerIdempotencyKey = "Idempotency-Key"
	sessionContextKey    = "session"
)

type HTTPHandler struct {
	postingService        *service.PostingService
	recipeService         *service.RecipeService
	catalogService        *service.CatalogService
	reconciliationService *service.ReconciliationService
}

type APIResponse struct {
	Success    bool                `json:"success"`
	Kind       domain.ErrorKind    `json:"kind,omitempty"`
	Message    string              `json:"message,omitempty"`
	Shortfalls []ShortfallResponse `json:"shortfalls,omitempty"`
	Data       any                 `json:"data,omitempty"`
}

type PostMovementHTTPRequest struct {
	RequestID string             `json:"request_id"`
	Kind      domain.RequestKind `json:"kind" binding:"required"`
	ItemID    string             `json:"item_id" binding:"required"`
	Quantity  decimal.Decimal    `json:"quantity"`
	Note      string             `json:"note"`
}

type RecipeComponentHTTP struct {
	RawMaterialID string          `json:"raw_material_id" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
}

type UpsertRecipeHTTPRequest struct {
	Components []RecipeComponentHTTP `json:"components"`
}

func NewHTTPHandler(
	postingService *service.PostingService,
	recipeService *service.RecipeService,
	catalogService *service.CatalogService,
	reconciliationService *service.ReconciliationService,
) *HTTPHandler {
	return &HTTPHandler{
		postingService:        postingService,
		recipeService:         recipeService,
		catalogService:        catalogService,
		reconciliationService: reconciliationService,
	}
}

// Register mounts all routes on r.
func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api", RequireSession())
	api.GET("/items", h.ListItems)
	api.GET("/items/:id", h.GetItem)
	api.GET("/summary", h.Summary)
	api.GET("/movements", h.ListMovements)
	api.POST("/movements", h.PostMovement)
	api.GET("/recipes", h.ListRecipes)
	api.GET("/recipes/:id", h.GetRecipe)

	admin := api.Group("", RequireRole(domain.RoleAdmin))
	admin.POST("/items", h.CreateItem)
	admin.PUT("/items/:id", h.UpdateItem)
	admin.DELETE("/items/:id", h.DeleteItem)
	admin.PUT("/recipes/:id", h.UpsertRecipe)
	admin.DELETE("/recipes/:id", h.DeleteRecipe)

	supervisor := api.Group("", RequireRole(domain.RoleAdmin, domain.RoleSupervisor))
	supervisor.GET("/reconciliation", h.Reconcile)
}

// RequireSession builds the caller's session from request headers.
// Authentication is performed upstream; this only attributes the request.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			writeError(c, fmt.Errorf("%w: missing %s header", domain.ErrUnauthenticated, headerUserID))
			c.Abort()
			return
		}
		role := domain.Role(strings.ToUpper(strings.TrimSpace(c.GetHeader(headerUserRole))))
		if !role.Valid() {
			role = domain.RoleOperator
		}
		c.Set(sessionContextKey, domain.Session{UserID: userID, Role: role})
		c.Next()
	}
}

func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessionFrom(c)
		for _, role := range roles {
			if session.Role == role {
				c.Next()
				return
			}
		}
		writeError(c, domain.ErrForbidden)
		c.Abort()
	}
}

func sessionFrom(c *gin.Context) domain.Session {
	if v, ok := c.Get(sessionContextKey); ok {
		if s, ok := v.(domain.Session); ok {
			return s
		}
	}
	return domain.Session{}
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ---- items ----

func (h *HTTPHandler) ListItems(c *gin.Context) {
	items, err := h.catalogService.ListItems(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, toItemResponses(items))
}

func (h *HTTPHandler) GetItem(c *gin.Context) {
	item, err := h.catalogService.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, toItemResponse(item))
}

func (h *HTTPHandler) CreateItem(c *gin.Context) {
	var req domain.NewItem
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	item, err := h.catalogService.CreateItem(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusCreated, toItemResponse(item))
}

func (h *HTTPHandler) UpdateItem(c *gin.Context) {
	var req domain.ItemPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}
	item, err := h.catalogService.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, toItemResponse(item))
}

func (h *HTTPHandler) DeleteItem(c *gin.Context) {
	if err := h.catalogService.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "item deleted"})
}

func (h *HTTPHandler) Summary(c *gin.Context) {
	summary, err := h.catalogService.Summary(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, SummaryResponse{
		TotalItems:    summary.TotalItems,
		RawMaterials:  summary.RawMaterials,
		FinishedGoods: summary.FinishedGoods,
		LowStock:      toItemResponses(summary.LowStock),
	})
}

// ---- movements ----

func (h *HTTPHandler) PostMovement(c *gin.Context) {
	var req PostMovementHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	request, err := domain.NewPostingRequest(req.Kind, req.ItemID, req.Quantity, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = c.GetHeader(headerIdempotencyKey)
	}

	movements, err := h.postingService.Post(c.Request.Context(), domain.PostingCommand{
		RequestID: requestID,
		ActorID:   sessionFrom(c).UserID,
		Request:   request,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Success: true, Message: postedMessage(movements), Data: toMovementResponses(movements)})
}

func (h *HTTPHandler) ListMovements(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, domain.NewValidationError("limit", "must be an integer", domain.ErrInvalidRequest))
			return
		}
		limit = n
	}

	movements, err := h.postingService.ListMovements(c.Request.Context(), domain.MovementFilter{
		ItemID: c.Query("item_id"),
		Kind:   domain.MovementKind(strings.ToUpper(c.Query("kind"))),
		Limit:  limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, toMovementResponses(movements))
}

// ---- recipes ----

func (h *HTTPHandler) ListRecipes(c *gin.Context) {
	recipes, err := h.recipeService.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]RecipeResponse, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, toRecipeResponse(r))
	}
	writeOK(c, http.StatusOK, out)
}

func (h *HTTPHandler) GetRecipe(c *gin.Context) {
	recipe, err := h.recipeService.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, toRecipeResponse(recipe))
}

func (h *HTTPHandler) UpsertRecipe(c *gin.Context) {
	var req UpsertRecipeHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, err)
		return
	}

	components := make([]domain.RecipeComponent, 0, len(req.Components))
	for _, comp := range req.Components {
		components = append(components, domain.RecipeComponent{
			RawMaterialID:   comp.RawMaterialID,
			QuantityPerUnit: comp.Quantity,
		})
	}
	if err := h.recipeService.Upsert(c.Request.Context(), c.Param("id"), components); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "recipe saved"})
}

func (h *HTTPHandler) DeleteRecipe(c *gin.Context) {
	if err := h.recipeService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "recipe deleted"})
}

// ---- reconciliation ----

func (h *HTTPHandler) Reconcile(c *gin.Context) {
	discrepancies, err := h.reconciliationService.Check(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]DiscrepancyResponse, 0, len(discrepancies))
	for _, d := range discrepancies {
		out = append(out, DiscrepancyResponse{
			ItemID:          d.ItemID,
			ItemCode:        d.ItemCode,
			CurrentStock:    d.CurrentStock,
			ReplayedStock:   d.ReplayedStock,
			BrokenMovements: d.BrokenMovements,
		})
	}
	writeOK(c, http.StatusOK, out)
}

// ---- responses ----

func writeOK(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Kind:    domain.KindValidation,
		Message: "invalid request body: " + err.Error(),
	})
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	resp := APIResponse{Success: false, Kind: kind, Message: err.Error()}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		resp.Shortfalls = toShortfallResponses(insufficient.Shortfalls)
	}
	if kind == domain.KindPersistence || kind == domain.KindInternal {
		_ = c.Error(err)
	}
	c.JSON(statusFor(kind), resp)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInsufficientStock, domain.KindNoRecipe:
		return http.StatusUnprocessableEntity
	case domain.KindDuplicateRequest:
		return http.StatusConflict
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
