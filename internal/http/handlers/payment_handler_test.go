package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ignatzorin/escrow-engine/internal/http/middleware"
)

// serve прогоняет запрос через один маршрут. Пустой actor означает анонимный запрос.
func serve(method, route, path, body string, actor uuid.UUID, role string, h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(method, route, func(c *gin.Context) {
		if actor != uuid.Nil {
			c.Set(middleware.ContextUserIDKey, actor)
			c.Set(middleware.ContextRoleKey, role)
		}
	}, h)

	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPaymentHandler_CreatePayment_Unauthorized(t *testing.T) {
	handler := &PaymentHandler{payments: nil}

	w := serve(http.MethodPost, "/payments", "/payments", `{}`, uuid.Nil, "", handler.CreatePayment)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPaymentHandler_CreatePayment_InvalidType(t *testing.T) {
	handler := &PaymentHandler{payments: nil}
	body := `{"project_id":"` + uuid.NewString() + `","payee_id":"` + uuid.NewString() + `","amount":"10.00","payment_type":"bonus"}`

	w := serve(http.MethodPost, "/payments", "/payments", body, uuid.New(), "client", handler.CreatePayment)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestPaymentHandler_GetPayment_InvalidID(t *testing.T) {
	handler := &PaymentHandler{payments: nil}

	w := serve(http.MethodGet, "/payments/:id", "/payments/invalid-uuid", "", uuid.New(), "client", handler.GetPayment)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowHandler_Release_MalformedBody(t *testing.T) {
	handler := &EscrowHandler{escrows: nil}

	w := serve(http.MethodPost, "/escrows/:id/release", "/escrows/"+uuid.NewString()+"/release", `{"amount":`,
		uuid.New(), "client", handler.Release)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscrowHandler_CreateEscrow_Unauthorized(t *testing.T) {
	handler := &EscrowHandler{escrows: nil}

	w := serve(http.MethodPost, "/escrows", "/escrows", `{}`, uuid.Nil, "", handler.CreateEscrow)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDisputeHandler_SubmitEvidence_RequiresLinks(t *testing.T) {
	handler := &DisputeHandler{svc: nil}

	w := serve(http.MethodPost, "/disputes/:id/evidence", "/disputes/"+uuid.NewString()+"/evidence", `{"evidence_urls":[]}`,
		uuid.New(), "client", handler.SubmitEvidence)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContractHandler_Terminate_RequiresReason(t *testing.T) {
	handler := &ContractHandler{}

	w := serve(http.MethodPost, "/contracts/:id/terminate", "/contracts/"+uuid.NewString()+"/terminate", `{}`,
		uuid.New(), "provider", handler.TerminateContract)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_SyncUser_InvalidBody(t *testing.T) {
	handler := &UserHandler{users: nil}

	w := serve(http.MethodPut, "/admin/users/:id", "/admin/users/"+uuid.NewString(), `{"email":"a@example.com"}`,
		uuid.New(), "admin", handler.SyncUser)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
