package entitlement

import (
	"context"
	"net/http"

	"carematch/pkg/db/pagination"
	"carematch/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Handler exposes the entitlement stores over HTTP under /v1.
type Handler struct {
	stores    map[Kind]*Store
	checkouts map[Kind]*Checkout
	catalog   *Catalog
}

func NewHandler(catalog *Catalog, stores []*Store, checkouts []*Checkout) *Handler {
	h := &Handler{
		stores:    make(map[Kind]*Store, len(stores)),
		checkouts: make(map[Kind]*Checkout, len(checkouts)),
		catalog:   catalog,
	}
	for _, s := range stores {
		h.stores[s.Kind()] = s
	}
	for _, c := range checkouts {
		h.checkouts[c.store.Kind()] = c
	}
	return h
}

func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/plans/:kind", h.listPlans)

	owner := v1.Group("/:kind/:owner")
	owner.GET("/status", h.status)
	owner.GET("/access", h.access)
	owner.GET("/history", h.history)
	owner.POST("/purchase", h.purchase)
	owner.POST("/cancel", h.cancel)
	owner.POST("/reactivate", h.reactivate)
}

type statusResponse struct {
	Kind    Kind   `json:"kind"`
	OwnerID string `json:"owner_id"`
	Status  Status `json:"status"`
}

type purchaseRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

func (h *Handler) kind(c *gin.Context) (Kind, bool) {
	kind, ok := ParseRoute(c.Param("kind"))
	if !ok || h.stores[kind] == nil {
		_ = c.Error(errutil.NotFound("unknown entitlement kind", nil, errutil.WithField("kind", c.Param("kind"))))
		return "", false
	}
	return kind, true
}

func (h *Handler) listPlans(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "plans": h.catalog.Plans(kind)})
}

func (h *Handler) status(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	owner := c.Param("owner")
	st, err := h.stores[kind].StatusOf(c.Request.Context(), owner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Kind: kind, OwnerID: owner, Status: st})
}

func (h *Handler) access(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	owner := c.Param("owner")
	if err := h.stores[kind].Require(c.Request.Context(), owner); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "owner_id": owner, "grants_access": true})
}

func (h *Handler) history(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	owner := c.Param("owner")
	recs, info, err := h.stores[kind].History(c.Request.Context(), owner, page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "owner_id": owner, "records": recs, "page_info": info})
}

func (h *Handler) purchase(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid purchase request", err, errutil.WithField("plan_id", "is required")))
		return
	}

	plan, err := h.catalog.Plan(kind, req.PlanID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	checkout := h.checkouts[kind]
	if checkout == nil {
		_ = c.Error(errutil.ServiceUnavailable("checkout unavailable", nil))
		return
	}

	owner := c.Param("owner")
	st, err := checkout.Begin(c.Request.Context(), owner, plan).Wait()
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, statusResponse{Kind: kind, OwnerID: owner, Status: st})
}

func (h *Handler) cancel(c *gin.Context) {
	h.transition(c, (*Store).Cancel)
}

func (h *Handler) reactivate(c *gin.Context) {
	h.transition(c, (*Store).Reactivate)
}

func (h *Handler) transition(c *gin.Context, op func(*Store, context.Context, string) (*Record, error)) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	owner := c.Param("owner")
	store := h.stores[kind]

	rec, err := op(store, c.Request.Context(), owner)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, statusResponse{Kind: kind, OwnerID: owner, Status: DeriveStatus(rec, store.clock.Now())})
}
