package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siteiq-ai/siteiq-engine/pkg/apperrors"
	"github.com/siteiq-ai/siteiq-engine/pkg/models"
	"github.com/siteiq-ai/siteiq-engine/pkg/services"
)

func newProfilesHandler(svc services.ProfileService) *ProfilesHandler {
	return NewProfilesHandler(svc, zap.NewNop())
}

func TestProfilesHandler_Create(t *testing.T) {
	conversationID := uuid.New()
	svc := &mockProfileService{profile: &models.WebsiteProfile{
		ID:             uuid.New(),
		ConversationID: conversationID,
		URL:            "https://example.com",
		Status:         models.ProfileStatusPending,
	}}

	body := `{"conversationId":"` + conversationID.String() + `","url":"https://example.com","isOwnWebsite":true}`
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/profiles", strings.NewReader(body)),
		authedClaims(uuid.New(), "user@example.com"))
	w := httptest.NewRecorder()
	newProfilesHandler(svc).Create(w, r)

	require.Equal(t, http.StatusCreated, w.Code)

	var profile models.WebsiteProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, models.ProfileStatusPending, profile.Status)
	assert.Equal(t, "https://example.com", profile.URL)
}

func TestProfilesHandler_CreateRejectsInvalidURL(t *testing.T) {
	svc := &mockProfileService{err: services.ErrInvalidURL}

	body := `{"conversationId":"` + uuid.New().String() + `","url":"not a url"}`
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/profiles", strings.NewReader(body)),
		authedClaims(uuid.New(), "user@example.com"))
	w := httptest.NewRecorder()
	newProfilesHandler(svc).Create(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_url", decodeError(t, w)["error"])
}

func TestProfilesHandler_CreateDenialMapsToForbidden(t *testing.T) {
	svc := &mockProfileService{err: &services.CreditDenial{Err: apperrors.ErrFeatureLimit, HoursLeft: 6}}

	body := `{"conversationId":"` + uuid.New().String() + `","url":"https://example.com"}`
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/profiles", strings.NewReader(body)),
		authedClaims(uuid.New(), "user@example.com"))
	w := httptest.NewRecorder()
	newProfilesHandler(svc).Create(w, r)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "feature_limit_reached:6", decodeError(t, w)["error"])
}

func TestProfilesHandler_CreateRejectsBadConversationID(t *testing.T) {
	body := `{"conversationId":"nope","url":"https://example.com"}`
	r := withClaims(httptest.NewRequest(http.MethodPost, "/api/profiles", strings.NewReader(body)),
		authedClaims(uuid.New(), "user@example.com"))
	w := httptest.NewRecorder()
	newProfilesHandler(&mockProfileService{}).Create(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfilesHandler_List(t *testing.T) {
	svc := &mockProfileService{profiles: []*models.WebsiteProfile{
		{ID: uuid.New(), URL: "https://example.com", Status: models.ProfileStatusCompleted},
		{ID: uuid.New(), URL: "https://rival.example", Status: models.ProfileStatusCrawling},
	}}

	r := withClaims(httptest.NewRequest(http.MethodGet, "/api/profiles?conversationId="+uuid.New().String(), nil),
		authedClaims(uuid.New(), "user@example.com"))
	w := httptest.NewRecorder()
	newProfilesHandler(svc).List(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Profiles []*models.WebsiteProfile `json:"profiles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Profiles, 2)
}

func TestProfilesHandler_ListRequiresConversationID(t *testing.T) {
	r := withClaims(httptest.NewRequest(http.MethodGet, "/api/profiles", nil),
		authedClaims(uuid.New(), "user@example.com"))
	w := httptest.NewRecorder()
	newProfilesHandler(&mockProfileService{}).List(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func statusUpdateRequest(profileID, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/internal/profiles/"+profileID+"/status", strings.NewReader(body))
	r.SetPathValue("id", profileID)
	return r
}

func TestProfilesHandler_UpdateStatus(t *testing.T) {
	svc := &mockProfileService{}
	score := 8.2

	body := `{"status":"completed","overallScore":8.2,"categoryScores":{"seo":7}}`
	w := httptest.NewRecorder()
	newProfilesHandler(svc).UpdateStatus(w, statusUpdateRequest(uuid.New().String(), body))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastUpdate)
	assert.Equal(t, models.ProfileStatusCompleted, svc.lastUpdate.Status)
	require.NotNil(t, svc.lastUpdate.OverallScore)
	assert.Equal(t, score, *svc.lastUpdate.OverallScore)
}

func TestProfilesHandler_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc := &mockProfileService{err: errors.New("invalid status")}

	w := httptest.NewRecorder()
	newProfilesHandler(svc).UpdateStatus(w, statusUpdateRequest(uuid.New().String(), `{"status":"exploded"}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_status", decodeError(t, w)["error"])
}

func TestProfilesHandler_UpdateStatusUnknownProfile(t *testing.T) {
	svc := &mockProfileService{err: apperrors.ErrNotFound}

	w := httptest.NewRecorder()
	newProfilesHandler(svc).UpdateStatus(w, statusUpdateRequest(uuid.New().String(), `{"status":"completed"}`))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w)["error"])
}

func TestProfilesHandler_UpdateStatusRejectsBadID(t *testing.T) {
	w := httptest.NewRecorder()
	newProfilesHandler(&mockProfileService{}).UpdateStatus(w, statusUpdateRequest("nope", `{"status":"completed"}`))

	require.Equal(t, http.StatusBadRequest, w.Code)
}
