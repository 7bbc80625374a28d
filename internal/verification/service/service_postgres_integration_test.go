//go:build integration

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	alertmodels "saferide/internal/alert/models"
	alertservice "saferide/internal/alert/service"
	alertstore "saferide/internal/alert/store"
	"saferide/internal/audit"
	challengemodels "saferide/internal/challenge/models"
	challengeservice "saferide/internal/challenge/service"
	"saferide/internal/challenge/store/profile"
	"saferide/internal/driver"
	escalationservice "saferide/internal/escalation/service"
	escalationstore "saferide/internal/escalation/store"
	"saferide/internal/tracking/hub"
	trackingservice "saferide/internal/tracking/service"
	trackingstore "saferide/internal/tracking/store"
	"saferide/internal/verification/models"
	"saferide/internal/verification/store"
	id "saferide/pkg/domain"
	"saferide/pkg/requestcontext"
	"saferide/pkg/testutil/containers"
)

// TestEmergencyConfirmedOnPostgres runs a confirmed emergency against the
// durable stores and the Redis hub.
func TestEmergencyConfirmedOnPostgres(t *testing.T) {
	pg := containers.NewPostgres(t)
	rc := containers.NewRedis(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithOperator(ctx, "phone-tree")

	_, err := pg.DB.ExecContext(ctx,
		`INSERT INTO drivers (id, full_name, vehicle_description, plate) VALUES ($1, $2, $3, $4)`,
		"driver-1", "Ana Mora", "Toyota Yaris gris", "BCD-123")
	require.NoError(t, err)

	auditStore := audit.NewPostgresStore(pg.DB)
	auditor := audit.NewPublisher(auditStore)
	alerts := alertservice.New(alertstore.NewPostgres(pg.DB))
	challenges := challengeservice.New(profile.NewPostgres(pg.DB), challengeservice.WithHashCost(bcrypt.MinCost))
	tracking := trackingservice.New(trackingstore.NewPostgres(pg.DB), alerts,
		trackingservice.WithHub(hub.NewRedis(rc.Client, nil)),
		trackingservice.WithAuditPublisher(auditor),
	)
	dispatcher := escalationservice.New(escalationstore.NewPostgres(pg.DB), alerts,
		escalationservice.WithAuditPublisher(auditor),
	)
	svc := New(store.NewPostgres(pg.DB), alerts, challenges, tracking, dispatcher,
		WithDriverDirectory(driver.NewPostgres(pg.DB)),
		WithAuditPublisher(auditor),
	)
	drain := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, svc.Drain(dctx))
	}

	_, err = challenges.SaveProfile(ctx, "driver-1",
		challengemodels.QuestionAnswer{Question: "El gato tiene atrapado al ratón", Answer: "Sí"},
		challengemodels.QuestionAnswer{Question: "Pura vida mae", Answer: "No"},
	)
	require.NoError(t, err)
	_, err = alerts.Raise(ctx, "A1", "driver-1")
	require.NoError(t, err)

	_, err = svc.Start(ctx, "A1", "dispatcher-7")
	require.NoError(t, err)
	first, err := svc.SubmitFirstAnswer(ctx, "A1", "SI")
	require.NoError(t, err)
	require.True(t, first.Correct)
	drain()

	session, err := tracking.ActiveForAlert(ctx, "A1")
	require.NoError(t, err)
	require.NoError(t, tracking.AppendLocation(ctx, session.ID, id.LocationSample{
		Latitude: 9.935, Longitude: -84.091, Timestamp: now.Add(5 * time.Second),
	}))

	second, err := svc.SubmitSecondAnswer(ctx, "A1", " No ")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCall911, second.Action)

	status, err := svc.GetStatus(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, status.CurrentStep)
	assert.Equal(t, session.ID, status.TrackingSessionID)

	call, err := dispatcher.FindByAlert(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, status.CallID, call.ID)
	assert.False(t, call.LocationIsFallback, "the tracked position is used")
	assert.InDelta(t, 9.935, call.Location.Latitude, 1e-9)
	assert.Equal(t, "BCD-123", call.DriverInfo.Plate)

	alert, err := alerts.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, alertmodels.StatusInvestigating, alert.Status)
	assert.Equal(t, call.ID, alert.Resolution.Call911ID)

	events, err := auditStore.ListByAlert(ctx, "A1")
	require.NoError(t, err)
	actions := make([]audit.Action, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionVerificationStarted)
	assert.Contains(t, actions, audit.ActionTrackingOpened)
	assert.Contains(t, actions, audit.ActionCallRecorded)
}
