package onboarding

import (
	"net/http"

	"carematch/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	patients *PatientStore
	doctors  *DoctorStore
}

func NewHandler(patients *PatientStore, doctors *DoctorStore) *Handler {
	return &Handler{patients: patients, doctors: doctors}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/onboarding")
	g.GET("/patients/:user", h.getPatient)
	g.PUT("/patients/:user", h.putPatient)
	g.GET("/patients/:user/fields/:field", h.patientField)
	g.GET("/doctors/:user", h.getDoctor)
	g.PUT("/doctors/:user", h.putDoctor)
	g.GET("/doctors/:user/fields/:field", h.doctorField)
}

type profileResponse[P any] struct {
	UserID     string     `json:"user_id"`
	Profile    *P         `json:"profile"`
	Complete   bool       `json:"complete"`
	Violations Violations `json:"violations"`
}

type fieldResponse struct {
	Field  string `json:"field"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

func respondProfile[P any](c *gin.Context, userID string, p *P, rules []Rule[P]) {
	violations := Validate(rules, p)
	if violations == nil {
		violations = Violations{}
	}
	c.JSON(http.StatusOK, profileResponse[P]{
		UserID:     userID,
		Profile:    p,
		Complete:   len(violations) == 0,
		Violations: violations,
	})
}

func respondField[P any](c *gin.Context, p *P, rules []Rule[P]) {
	name := c.Param("field")
	res, err := ValidateField(rules, p, name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, fieldResponse{Field: name, Valid: res.OK(), Reason: res.Reason})
}

func (h *Handler) getPatient(c *gin.Context) {
	user := c.Param("user")
	respondProfile(c, user, h.patients.Get(user), PatientRules)
}

func (h *Handler) putPatient(c *gin.Context) {
	var p PatientProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid patient profile", err))
		return
	}
	user := c.Param("user")
	h.patients.Replace(user, &p)
	respondProfile(c, user, h.patients.Get(user), PatientRules)
}

func (h *Handler) patientField(c *gin.Context) {
	respondField(c, h.patients.Get(c.Param("user")), PatientRules)
}

func (h *Handler) getDoctor(c *gin.Context) {
	user := c.Param("user")
	respondProfile(c, user, h.doctors.Get(user), DoctorRules)
}

func (h *Handler) putDoctor(c *gin.Context) {
	var p DoctorProfile
	if err := c.ShouldBindJSON(&p); err != nil {
		_ = c.Error(errutil.BadRequest("invalid doctor profile", err))
		return
	}
	user := c.Param("user")
	h.doctors.Replace(user, &p)
	respondProfile(c, user, h.doctors.Get(user), DoctorRules)
}

func (h *Handler) doctorField(c *gin.Context) {
	respondField(c, h.doctors.Get(c.Param("user")), DoctorRules)
}
