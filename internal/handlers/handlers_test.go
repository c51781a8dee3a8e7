package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stanstork/waterwatch-api/internal/apperrors"
	"github.com/stanstork/waterwatch-api/internal/authz"
	"github.com/stanstork/waterwatch-api/internal/healthcard"
	"github.com/stanstork/waterwatch-api/internal/models"
	"github.com/stanstork/waterwatch-api/internal/observation"
	"github.com/stanstork/waterwatch-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

type fakeWaterTests struct {
	created   observation.CreateInput
	updated   observation.UpdateInput
	updatedID string
	actor     observation.Actor
	wt        models.WaterTest
	err       error
}

func (f *fakeWaterTests) Create(_ context.Context, actor observation.Actor, in observation.CreateInput) (models.WaterTest, error) {
	f.actor, f.created = actor, in
	return f.wt, f.err
}

func (f *fakeWaterTests) Update(_ context.Context, actor observation.Actor, id string, in observation.UpdateInput) (models.WaterTest, error) {
	f.actor, f.updatedID, f.updated = actor, id, in
	return f.wt, f.err
}

func (f *fakeWaterTests) Delete(_ context.Context, actor observation.Actor, id string) error {
	f.actor, f.updatedID = actor, id
	return f.err
}

func (f *fakeWaterTests) ListAll(_ context.Context, actor observation.Actor) ([]models.WaterTest, error) {
	f.actor = actor
	return nil, f.err
}

type fakeCards struct {
	card models.HealthCard
	err  error
}

func (f *fakeCards) Create(_ context.Context, in healthcard.CreateInput) (models.HealthCard, error) {
	card := f.card
	card.WaterbodyName = in.WaterbodyName
	return card, f.err
}

func (f *fakeCards) Get(context.Context, string) (models.HealthCard, error)     { return f.card, f.err }
func (f *fakeCards) Refresh(context.Context, string) (models.HealthCard, error) { return f.card, f.err }
func (f *fakeCards) List(context.Context) ([]models.HealthCard, error)          { return nil, f.err }

type fakeAlerts struct {
	filter  repository.AlertFilter
	since   time.Time
	listErr error
}

func (f *fakeAlerts) List(_ context.Context, filter repository.AlertFilter) (repository.AlertPage, error) {
	f.filter = filter
	if f.listErr != nil {
		return repository.AlertPage{}, f.listErr
	}
	return repository.AlertPage{Alerts: []models.Alert{{ID: "a-1", Kind: models.AlertKindGlobal}}}, nil
}

func (f *fakeAlerts) Stats(_ context.Context, since time.Time) (models.AlertStats, error) {
	f.since = since
	return models.AlertStats{TotalLeaderAlerts: 3, TotalGlobalAlerts: 1, TotalAlerts: 4, RecentAlerts: 2}, nil
}

type fakeUsers struct {
	user    models.User
	created models.User
	err     error
}

func (f *fakeUsers) CreateUser(_ context.Context, name, email, _ string, phone *string, role models.UserRole) (models.User, error) {
	f.created = models.User{ID: "u-new", Name: name, Email: email, Phone: phone, Role: role}
	return f.created, f.err
}

func (f *fakeUsers) AuthenticateUser(_ context.Context, email, password string) (models.User, error) {
	if f.err != nil {
		return models.User{}, f.err
	}
	if bcrypt.CompareHashAndPassword([]byte(f.user.PasswordHash), []byte(password)) != nil {
		return models.User{}, repository.ErrInvalidCredentials
	}
	return f.user, nil
}

func (f *fakeUsers) ListByRole(context.Context, models.UserRole) ([]models.User, error) { return nil, nil }
func (f *fakeUsers) ListAll(context.Context) ([]models.User, error)                     { return nil, nil }

func withActor(r *http.Request, id string, role models.UserRole) *http.Request {
	return r.WithContext(authz.WithIdentity(r.Context(), id, role))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{apperrors.Validation("invalid quality"), http.StatusBadRequest, "invalid quality"},
		{apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{apperrors.ErrNotFound, http.StatusNotFound, "not found"},
		{apperrors.Persistence(errors.New("dial tcp"), "insert"), http.StatusInternalServerError, "internal server error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, zerolog.Nop(), tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, tc.msg, decodeBody(t, rec)["message"])
	}
}

func TestCreateWaterTest(t *testing.T) {
	svc := &fakeWaterTests{wt: models.WaterTest{ID: "wt-1"}}
	h := NewWaterTestHandler(svc, zerolog.Nop())

	body := `{"waterbodyName":"Central Lake","dateTime":"2024-04-01T09:30:00Z","location":"Sector 1","photoUrl":"p","notes":"n","quality":"medium"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/water-tests", strings.NewReader(body)), "asha-1", models.RoleASHA)
	rec := httptest.NewRecorder()
	h.CreateWaterTest(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"waterTest":{"id":"wt-1"}}`, rec.Body.String())
	assert.Equal(t, observation.Actor{ID: "asha-1", Role: models.RoleASHA}, svc.actor)
	assert.Equal(t, "medium", svc.created.Quality)
}

func TestCreateWaterTest_Errors(t *testing.T) {
	h := NewWaterTestHandler(&fakeWaterTests{err: apperrors.Validation("invalid quality")}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.CreateWaterTest(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateWaterTest(rec, withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)), "a", models.RoleASHA))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateWaterTest(rec, withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), "a", models.RoleASHA))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid quality", decodeBody(t, rec)["message"])
}

func TestCreateWaterTest_DispatchFailureReturnsID(t *testing.T) {
	svc := &fakeWaterTests{wt: models.WaterTest{ID: "wt-1"}, err: errors.New("alerts table unavailable")}
	h := NewWaterTestHandler(svc, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.CreateWaterTest(rec, withActor(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)), "asha-1", models.RoleASHA))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"water test stored but alert dispatch failed","waterTest":{"id":"wt-1"}}`, rec.Body.String())
}

func TestUpdateWaterTest(t *testing.T) {
	svc := &fakeWaterTests{wt: models.WaterTest{ID: "wt-1", Notes: "resampled"}}
	h := NewWaterTestHandler(svc, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/water-tests/wt-1", strings.NewReader(`{"notes":"resampled","waterbodyId":null}`))
	req = mux.SetURLVars(withActor(req, "asha-1", models.RoleASHA), map[string]string{"id": "wt-1"})
	rec := httptest.NewRecorder()
	h.UpdateWaterTest(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wt-1", svc.updatedID)
	require.NotNil(t, svc.updated.Notes)
	assert.Equal(t, "resampled", *svc.updated.Notes)
	assert.True(t, svc.updated.ClearWaterbodyID)
}

func TestDecodeUpdate(t *testing.T) {
	in, err := decodeUpdate(strings.NewReader(`{"notes":"x"}`))
	require.NoError(t, err)
	assert.False(t, in.ClearWaterbodyID)
	assert.Nil(t, in.WaterbodyID)

	in, err = decodeUpdate(strings.NewReader(`{"waterbodyId":""}`))
	require.NoError(t, err)
	assert.True(t, in.ClearWaterbodyID)
	assert.Nil(t, in.WaterbodyID)

	in, err = decodeUpdate(strings.NewReader(`{"waterbodyId":"wb-2"}`))
	require.NoError(t, err)
	assert.False(t, in.ClearWaterbodyID)
	require.NotNil(t, in.WaterbodyID)
	assert.Equal(t, "wb-2", *in.WaterbodyID)

	_, err = decodeUpdate(strings.NewReader(`[]`))
	assert.Error(t, err)
}

func TestDeleteWaterTest(t *testing.T) {
	h := NewWaterTestHandler(&fakeWaterTests{}, zerolog.Nop())

	req := mux.SetURLVars(withActor(httptest.NewRequest(http.MethodDelete, "/", nil), "a", models.RoleAdmin), map[string]string{"id": "wt-1"})
	rec := httptest.NewRecorder()
	h.DeleteWaterTest(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":true}`, rec.Body.String())
}

func TestListWaterTests_Empty(t *testing.T) {
	h := NewWaterTestHandler(&fakeWaterTests{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListWaterTests(rec, withActor(httptest.NewRequest(http.MethodGet, "/", nil), "a", models.RoleAdmin))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"waterTests":[]}`, rec.Body.String())
}

func TestGetHealthCard(t *testing.T) {
	h := NewHealthCardHandler(&fakeCards{card: models.HealthCard{WaterbodyID: "wb-1", RiskScore: 27}}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetHealthCard(rec, mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"waterbodyId": "wb-1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	card := body["healthCard"].(map[string]interface{})
	assert.EqualValues(t, 27, card["riskScore"])
	assert.Nil(t, card["lastTestedDate"])
	_, demo := body["isDemo"]
	assert.False(t, demo)
}

func TestGetHealthCard_Demo(t *testing.T) {
	h := NewHealthCardHandler(&fakeCards{card: models.HealthCard{WaterbodyID: "wb-1", RiskScore: 50, IsDemo: true}}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetHealthCard(rec, mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"waterbodyId": "wb-1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["isDemo"])
}

func TestGetHealthCard_NotFound(t *testing.T) {
	h := NewHealthCardHandler(&fakeCards{err: apperrors.ErrNotFound}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetHealthCard(rec, mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"waterbodyId": "nope"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateHealthCard(t *testing.T) {
	h := NewHealthCardHandler(&fakeCards{card: models.HealthCard{WaterbodyID: "wb-1"}}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.CreateHealthCard(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"waterbodyName":"Central Lake","location":"x"}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	card := decodeBody(t, rec)["healthCard"].(map[string]interface{})
	assert.Equal(t, "Central Lake", card["waterbodyName"])
}

func TestListHealthCards_Empty(t *testing.T) {
	h := NewHealthCardHandler(&fakeCards{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListHealthCards(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"healthCards":[]}`, rec.Body.String())
}

func TestAlertHandler_List(t *testing.T) {
	alerts := &fakeAlerts{}
	h := NewAlertHandler(alerts, clockwork.NewFakeClock(), zerolog.Nop())

	cursor := "6f1c1f5e-8f5a-4a43-9b36-1d2c5f0f7b11"
	rec := httptest.NewRecorder()
	h.ListAlerts(rec, httptest.NewRequest(http.MethodGet, "/?limit=10&cursor="+cursor, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.AlertFilter{Limit: 10, Cursor: cursor}, alerts.filter)
	assert.Len(t, decodeBody(t, rec)["alerts"], 1)
}

func TestAlertHandler_ListRejectsBadParams(t *testing.T) {
	h := NewAlertHandler(&fakeAlerts{}, clockwork.NewFakeClock(), zerolog.Nop())

	for _, q := range []string{"?limit=abc", "?limit=0", "?cursor=abc"} {
		rec := httptest.NewRecorder()
		h.ListAlerts(rec, httptest.NewRequest(http.MethodGet, "/"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestAlertHandler_UnknownCursor(t *testing.T) {
	h := NewAlertHandler(&fakeAlerts{listErr: apperrors.Validation("invalid cursor")}, clockwork.NewFakeClock(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListAlerts(rec, httptest.NewRequest(http.MethodGet, "/?cursor=6f1c1f5e-8f5a-4a43-9b36-1d2c5f0f7b11", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid cursor", decodeBody(t, rec)["message"])
}

func TestAlertHandler_LeaderAndGlobal(t *testing.T) {
	alerts := &fakeAlerts{}
	h := NewAlertHandler(alerts, clockwork.NewFakeClock(), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ListLeaderAlerts(rec, withActor(httptest.NewRequest(http.MethodGet, "/", nil), "leader-1", models.RoleLeader))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.AlertFilter{Kind: models.AlertKindLeader, LeaderID: "leader-1"}, alerts.filter)

	rec = httptest.NewRecorder()
	h.ListGlobalAlerts(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.AlertFilter{Kind: models.AlertKindGlobal}, alerts.filter)
}

func TestAlertHandler_Stats(t *testing.T) {
	alerts := &fakeAlerts{}
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	h := NewAlertHandler(alerts, clockwork.NewFakeClockAt(now), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.GetAlertStats(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, now.Add(-24*time.Hour), alerts.since)
	assert.JSONEq(t, `{"totalLeaderAlerts":3,"totalGlobalAlerts":1,"totalAlerts":4,"recentAlerts":2}`, rec.Body.String())
}

func newAuthFixture(t *testing.T) (*AuthHandler, *fakeUsers) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	users := &fakeUsers{user: models.User{ID: "u-1", Email: "asha@x.org", Role: models.RoleASHA, PasswordHash: string(hash)}}
	return NewAuthHandler(users, testSecret, zerolog.Nop()), users
}

func TestLogin(t *testing.T) {
	h, _ := newAuthFixture(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"asha@x.org","password":"s3cret"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	token, err := jwt.Parse(body["token"].(string), func(*jwt.Token) (interface{}, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "u-1", claims["sub"])
	assert.Equal(t, "asha", claims["role"])
}

func TestLogin_WrongPassword(t *testing.T) {
	h, _ := newAuthFixture(t)

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"asha@x.org","password":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignUp(t *testing.T) {
	h, users := newAuthFixture(t)

	rec := httptest.NewRecorder()
	h.SignUp(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Ravi","email":"ravi@x.org","password":"pw","phone":" "}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.RolePublic, users.created.Role)
	assert.Nil(t, users.created.Phone)

	rec = httptest.NewRecorder()
	h.SignUp(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"ravi@x.org"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func TestJWTMiddleware(t *testing.T) {
	h, _ := newAuthFixture(t)
	var got observation.Actor
	protected := h.JWTMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = actorFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	exp := time.Now().Add(time.Hour).Unix()
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "role": "leader", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"bad role", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "role": "root", "exp": exp}), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u-1", "role": "leader", "exp": exp}), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, observation.Actor{ID: "u-1", Role: models.RoleLeader}, got)
}
