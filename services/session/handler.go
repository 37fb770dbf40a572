package session

import (
	"net/http"

	"carematch/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/session")
	g.GET("", h.get)
	g.POST("", h.signIn)
	g.PUT("/role", h.chooseRole)
	g.DELETE("", h.signOut)
}

type stateResponse struct {
	Phase  string `json:"phase"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
}

func render(c *gin.Context, st State) {
	c.JSON(http.StatusOK, stateResponse{Phase: st.Phase.String(), UserID: st.UserID, Role: st.Role.String()})
}

type signInRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

func parseRole(raw string) (Role, error) {
	role, ok := ParseRole(raw)
	if !ok {
		return RoleNone, errutil.BadRequest("unknown role", nil, errutil.WithField("role", "must be patient or doctor"))
	}
	return role, nil
}

func (h *Handler) get(c *gin.Context) {
	render(c, h.store.Current())
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid sign in request", err))
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	st, err := h.store.SignIn(req.UserID, role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	render(c, st)
}

func (h *Handler) chooseRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid role request", err))
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	st, err := h.store.ChooseRole(role)
	if err != nil {
		_ = c.Error(err)
		return
	}
	render(c, st)
}

func (h *Handler) signOut(c *gin.Context) {
	render(c, h.store.SignOut())
}
