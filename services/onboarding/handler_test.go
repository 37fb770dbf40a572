package onboarding

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"carematch/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *PatientStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	patients, doctors := NewPatientStore(), NewDoctorStore()
	t.Cleanup(patients.Clear)
	t.Cleanup(doctors.Clear)

	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(patients, doctors).Register(r)
	return r, patients
}

func TestHandlerPatientProfile(t *testing.T) {
	r, patients := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/onboarding/patients/P1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var empty profileResponse[PatientProfile]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	require.False(t, empty.Complete)
	require.Len(t, empty.Violations, len(PatientRules))

	p := completePatient()
	p.EmergencyContact.Phone = ""
	body, err := json.Marshal(p)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/onboarding/patients/P1", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var saved profileResponse[PatientProfile]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	require.False(t, saved.Complete)
	require.Equal(t, Violations{{Field: "emergency_contact.phone", Reason: "must not be blank"}}, saved.Violations)
	require.False(t, patients.IsComplete("P1"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/onboarding/patients/P1/fields/emergency_contact.phone", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"field":"emergency_contact.phone","valid":false,"reason":"must not be blank"}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/onboarding/patients/P1/fields/unknown", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerRejectsMalformedProfile(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/onboarding/doctors/D1", strings.NewReader(`{"full_name": 7}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
