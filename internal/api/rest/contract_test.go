package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/service/audit"
)

func TestContract_DocumentLoads(t *testing.T) {
	_, err := NewContractValidator()
	require.NoError(t, err)
}

// TestContract_ResponsesMatchDocument drives every documented operation through the router
// and checks both sides of the exchange against the OpenAPI document.
func TestContract_ResponsesMatchDocument(t *testing.T) {
	cv, err := NewContractValidator()
	require.NoError(t, err)

	h := newAPIHarness(t)
	_, guard := h.actor(t, role.OrgGuard)
	_, dispatcher := h.actor(t, role.OrgDispatcher)
	_, admin := h.actor(t, role.OrgAdmin)
	responderID, _ := h.actor(t, role.OrgGuard)

	toAssign := h.seed(t, incident.StatusAccepted)
	toMove := h.seed(t, incident.StatusAccepted)
	enRoute := h.seed(t, incident.StatusInProgress)
	h.auditLog.entries = []audit.Entry{{
		EventID:    uuid.New(),
		TenantID:   h.tenant,
		IncidentID: toAssign.ID,
		Kind:       incident.EventCreated,
		ActorID:    uuid.New(),
		ActorRole:  "guard",
		Payload:    json.RawMessage(`{"title":"Gate 4","type":"alarm","severity":"high"}`),
		OccurredAt: time.Now().UTC(),
	}}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		status int
	}{
		{"roles", http.MethodGet, "/v1/me/roles", guard, nil, http.StatusOK},
		{"clear view as", http.MethodDelete, "/v1/me/view-as", guard, nil, http.StatusNoContent},
		{"create", http.MethodPost, "/v1/org/incidents", guard, CreateIncidentRequest{Title: "Gate 4", Type: "alarm", Severity: "high"}, http.StatusCreated},
		{"get", http.MethodGet, incidentPath("org", toAssign.ID, ""), dispatcher, nil, http.StatusOK},
		{"permissions", http.MethodGet, incidentPath("org", toAssign.ID, "/permissions"), dispatcher, nil, http.StatusOK},
		{"assign", http.MethodPost, incidentPath("org", toAssign.ID, "/assignment"), dispatcher, AssignRequest{ResponderID: responderID.String()}, http.StatusOK},
		{"transition", http.MethodPost, incidentPath("org", toMove.ID, "/transitions"), dispatcher, TransitionRequest{Target: "in_progress"}, http.StatusOK},
		{"mark on site", http.MethodPost, incidentPath("org", enRoute.ID, "/on-site"), guard, nil, http.StatusOK},
		{"comment", http.MethodPost, incidentPath("org", toAssign.ID, "/comments"), guard, CommentRequest{Body: "on my way"}, http.StatusCreated},
		{"timeline", http.MethodGet, incidentPath("org", toAssign.ID, "/timeline"), guard, nil, http.StatusOK},
		{"audit log", http.MethodGet, "/v1/org/audit-log?limit=10", admin, nil, http.StatusOK},
		{"not found", http.MethodGet, incidentPath("org", uuid.New(), ""), guard, nil, http.StatusNotFound},
		{"no access", http.MethodPost, incidentPath("org", toMove.ID, "/transitions"), admin, TransitionRequest{Target: "closed"}, http.StatusForbidden},
		{"unauthenticated", http.MethodGet, "/v1/me/roles", "", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw []byte
			if tt.body != nil {
				raw, err = json.Marshal(tt.body)
				require.NoError(t, err)
			}
			newRequest := func() *http.Request {
				req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(raw))
				if tt.body != nil {
					req.Header.Set("Content-Type", "application/json")
				}
				if tt.token != "" {
					req.Header.Set("Authorization", "Bearer "+tt.token)
				}
				return req
			}

			// The bearer scheme itself is enforced by AuthMiddleware.
			if tt.token != "" {
				require.NoError(t, cv.ValidateRequest(newRequest()))
			}

			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, newRequest())
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			assert.NoError(t, cv.ValidateResponse(newRequest(), rec.Code, rec.Header(), rec.Body.Bytes()))
		})
	}
}

func TestContract_Middleware(t *testing.T) {
	cv, err := NewContractValidator()
	require.NoError(t, err)
	h := newAPIHarness(t, func(cfg *RouterConfig) { cfg.Contract = cv })
	_, dispatcher := h.actor(t, role.OrgDispatcher)
	inc := h.seed(t, incident.StatusAccepted)

	t.Run("undocumented field is rejected before the handler", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, incidentPath("org", inc.ID, "/transitions"), dispatcher, map[string]string{"target": "in_progress", "force": "yes"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
		assert.Equal(t, incident.StatusAccepted, h.store.Incident(inc.ID).Status)
	})

	t.Run("unknown scope fails the path parameter", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, incidentPath("galaxy", inc.ID, ""), dispatcher, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Contains(t, env.Error.Fields, "scope")
	})

	t.Run("long scope name is outside the contract", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, incidentPath("organization", inc.ID, ""), dispatcher, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Contains(t, env.Error.Fields, "scope")
	})

	t.Run("valid request reaches the handler with its body intact", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, incidentPath("org", inc.ID, "/transitions"), dispatcher, TransitionRequest{Target: "in_progress"})

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, incident.StatusInProgress, h.store.Incident(inc.ID).Status)
	})

	t.Run("authentication still runs first", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, incidentPath("org", inc.ID, "/transitions"), "", map[string]string{"force": "yes"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestContract_DocumentIsServed(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/openapi.yaml", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "openapi: 3.0.3")
}
