package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	alertservice "saferide/internal/alert/service"
	alertstore "saferide/internal/alert/store"
	challengemodels "saferide/internal/challenge/models"
	challengeservice "saferide/internal/challenge/service"
	"saferide/internal/challenge/store/profile"
	escalationservice "saferide/internal/escalation/service"
	escalationstore "saferide/internal/escalation/store"
	trackingservice "saferide/internal/tracking/service"
	trackingstore "saferide/internal/tracking/store"
	"saferide/internal/verification/service"
	"saferide/internal/verification/store"
	id "saferide/pkg/domain"
	"saferide/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	alerts  *alertservice.Service
	service *service.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	alerts := alertservice.New(alertstore.NewInMemory())
	challenges := challengeservice.New(profile.NewInMemory(), challengeservice.WithHashCost(bcrypt.MinCost))
	_, err := challenges.SaveProfile(ctx, "driver-1",
		challengemodels.QuestionAnswer{Question: "El gato tiene atrapado al ratón", Answer: "Sí"},
		challengemodels.QuestionAnswer{Question: "Pura vida mae", Answer: "No"},
	)
	require.NoError(t, err)

	svc := service.New(store.NewInMemory(), alerts, challenges,
		trackingservice.New(trackingstore.NewInMemory(), alerts),
		escalationservice.New(escalationstore.NewInMemory(), alerts),
		service.WithLogger(logger),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Drain(ctx)
	})

	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return &fixture{router: r, alerts: alerts, service: svc}
}

func (f *fixture) raise(t *testing.T, alertID id.AlertID) {
	t.Helper()
	_, err := f.alerts.Raise(context.Background(), alertID, "driver-1")
	require.NoError(t, err)
}

func (f *fixture) post(t *testing.T, path string, body any) (int, string) {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = testutil.NewRequest(t, http.MethodPost, path)
	} else {
		req = testutil.NewJSONRequest(t, http.MethodPost, path, body)
	}
	rec := testutil.DoRequest(f.router, req)
	return rec.Code, rec.Body.String()
}

func TestMismatchResponsesAreIdentical(t *testing.T) {
	f := newFixture(t)

	f.raise(t, "alert-first")
	code, _ := f.post(t, "/alerts/alert-first/verification", nil)
	require.Equal(t, http.StatusCreated, code)
	firstCode, firstBody := f.post(t, "/alerts/alert-first/verification/first-answer", map[string]string{"answer": "no"})

	f.raise(t, "alert-second")
	code, _ = f.post(t, "/alerts/alert-second/verification", nil)
	require.Equal(t, http.StatusCreated, code)
	code, _ = f.post(t, "/alerts/alert-second/verification/first-answer", map[string]string{"answer": "sí"})
	require.Equal(t, http.StatusOK, code)
	secondCode, secondBody := f.post(t, "/alerts/alert-second/verification/second-answer", map[string]string{"answer": "sí"})

	assert.Equal(t, http.StatusOK, firstCode)
	assert.Equal(t, firstCode, secondCode)
	assert.JSONEq(t, `{"correct":false}`, firstBody)
	assert.Equal(t, firstBody, secondBody)
}

func TestVerificationFlow(t *testing.T) {
	f := newFixture(t)
	f.raise(t, "A1")

	code, body := f.post(t, "/alerts/A1/verification", map[string]string{"verified_by": "dispatcher-7"})
	require.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"question":{"text":"El gato tiene atrapado al ratón","category":"primary","cultural_context":false}}`, body)

	code, body = f.post(t, "/alerts/A1/verification/first-answer", map[string]string{"answer": " Sí "})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"correct":true,"next_question":{"text":"Pura vida mae","category":"secondary","cultural_context":true}}`, body)

	code, body = f.post(t, "/alerts/A1/verification/second-answer", map[string]string{"answer": "no"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"correct":true,"action":"call_911"}`, body)

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/alerts/A1/verification"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"current_step":"completed"`)
	assert.Contains(t, rec.Body.String(), `"verified_by":"dispatcher-7"`)
	assert.NotContains(t, rec.Body.String(), "Sí")
	assert.NotContains(t, rec.Body.String(), `"no"`)
}

func TestVerificationErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("unknown alert", func(t *testing.T) {
		code, body := f.post(t, "/alerts/missing/verification", nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Contains(t, body, "not_found")
	})

	t.Run("driver without profile", func(t *testing.T) {
		_, err := f.alerts.Raise(context.Background(), "alert-np", "driver-unknown")
		require.NoError(t, err)
		code, body := f.post(t, "/alerts/alert-np/verification", nil)
		assert.Equal(t, http.StatusPreconditionFailed, code)
		assert.Contains(t, body, "not_configured")
	})

	t.Run("start twice", func(t *testing.T) {
		f.raise(t, "alert-twice")
		code, _ := f.post(t, "/alerts/alert-twice/verification", nil)
		require.Equal(t, http.StatusCreated, code)
		code, body := f.post(t, "/alerts/alert-twice/verification", nil)
		assert.Equal(t, http.StatusConflict, code)
		assert.Contains(t, body, "already_in_progress")
	})

	t.Run("answer out of step", func(t *testing.T) {
		f.raise(t, "alert-step")
		code, _ := f.post(t, "/alerts/alert-step/verification", nil)
		require.Equal(t, http.StatusCreated, code)
		code, body := f.post(t, "/alerts/alert-step/verification/second-answer", map[string]string{"answer": "no"})
		assert.Equal(t, http.StatusConflict, code)
		assert.Contains(t, body, "invalid_step")
	})

	t.Run("malformed body", func(t *testing.T) {
		f.raise(t, "alert-body")
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/alerts/alert-body/verification/first-answer", `{"answer":`)
		rec := testutil.DoRequest(f.router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/alerts/alert-body/verification/first-answer", `{"answer":"sí","step":2}`)
		rec := testutil.DoRequest(f.router, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
