package navigator

import (
	"net/http"

	"carematch/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	nav *Navigator
}

func NewHandler(nav *Navigator) *Handler {
	return &Handler{nav: nav}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/navigation")
	g.GET("", h.get)
	g.POST("/push", h.push)
	g.POST("/back", h.back)
}

type navigationResponse struct {
	Destination string   `json:"destination"`
	Stack       []string `json:"stack"`
}

type pushRequest struct {
	Route string `json:"route" binding:"required"`
}

func (h *Handler) render(c *gin.Context) {
	c.JSON(http.StatusOK, navigationResponse{
		Destination: h.nav.Current().String(),
		Stack:       h.nav.Stack(),
	})
}

func (h *Handler) get(c *gin.Context) {
	h.nav.Sync()
	h.render(c)
}

func (h *Handler) push(c *gin.Context) {
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid push request", err))
		return
	}
	if err := h.nav.Push(req.Route); err != nil {
		_ = c.Error(err)
		return
	}
	h.render(c)
}

func (h *Handler) back(c *gin.Context) {
	h.nav.Back()
	h.render(c)
}
