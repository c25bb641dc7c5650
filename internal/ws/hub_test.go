package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestHub(t *testing.T, st store.Store) *Hub {
	t.Helper()
	h := New(st, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func addConn(t *testing.T, h *Hub) *connection {
	t.Helper()
	c := newConnection(h, nil)
	h.register <- c
	return c
}

func send(h *Hub, c *connection, format string, args ...any) {
	h.inbound <- frame{conn: c, payload: []byte(fmt.Sprintf(format, args...))}
}

func recv(t *testing.T, c *connection) envelope {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return envelope{}
	}
}

func recvNothing(t *testing.T, c *connection) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected envelope: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func seedUser(t *testing.T, st store.Store, username string, role models.Role) *models.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), username, "x", username, role)
	require.NoError(t, err)
	return u
}

func authenticate(h *Hub, c *connection, userID int, role models.Role) {
	send(h, c, `{"type":"authenticate","data":{"userId":%d,"role":%q}}`, userID, role)
}

func TestLocationUpsertKeepsOneRowPerUser(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	c := addConn(t, h)
	authenticate(h, c, surveyor.ID, models.RoleSurveyor)
	send(h, c, `{"type":"subscribe","channel":"updateLocation","data":{"userId":%d,"location":{"type":"Point","coordinates":[20,10]}}}`, surveyor.ID)
	send(h, c, `{"type":"subscribe","channel":"updateLocation","data":{"userId":%d,"location":{"type":"Point","coordinates":[21,11]}}}`, surveyor.ID)

	require.Eventually(t, func() bool {
		loc, err := st.GetLocation(context.Background(), surveyor.ID)
		return err == nil && loc.IsActive && len(loc.Location.Coordinates) == 2 && loc.Location.Coordinates[0] == 21
	}, 2*time.Second, 10*time.Millisecond)

	locations, err := st.GetActiveLocations(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 1, "updates for one user must share a single row")
	assert.Equal(t, []float64{21, 11}, locations[0].Location.Coordinates)
}

func TestEndShiftThenDisconnect(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)
	admin := seedUser(t, st, "boss", models.RoleAdmin)

	watcher := addConn(t, h)
	authenticate(h, watcher, admin.ID, models.RoleAdmin)
	// The admin's own authenticate is broadcast to admin roles too.
	env := recv(t, watcher)
	require.Equal(t, models.MsgSurveyorStatus, env.Type)

	agent := addConn(t, h)
	authenticate(h, agent, surveyor.ID, models.RoleSurveyor)
	env = recv(t, watcher)
	require.Equal(t, models.MsgSurveyorStatus, env.Type)

	send(h, agent, `{"type":"endShift","data":{"userId":%d,"location":{"type":"Point","coordinates":[20,10]}}}`, surveyor.ID)
	h.unregister <- agent

	// One surveyor-status per terminal event: endShift and the close handler.
	var inactive []models.SurveyorStatus
	deadline := time.After(2 * time.Second)
	for len(inactive) < 2 {
		select {
		case payload, ok := <-watcher.send:
			require.True(t, ok)
			var env envelope
			require.NoError(t, json.Unmarshal(payload, &env))
			if env.Type != models.MsgSurveyorStatus {
				continue
			}
			var status models.SurveyorStatus
			require.NoError(t, json.Unmarshal(env.Data, &status))
			if status.UserID == surveyor.ID && !status.IsActive {
				inactive = append(inactive, status)
			}
		case <-deadline:
			t.Fatalf("saw %d inactive status broadcasts, want 2", len(inactive))
		}
	}
	recvNothing(t, watcher)

	loc, err := st.GetLocation(context.Background(), surveyor.ID)
	require.NoError(t, err)
	assert.False(t, loc.IsActive)
	assert.Equal(t, []float64{20, 10}, loc.Location.Coordinates,
		"disconnect must keep the last known position")
}

func TestDisconnectRunsOnce(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	c := addConn(t, h)
	authenticate(h, c, surveyor.ID, models.RoleSurveyor)
	h.unregister <- c
	h.unregister <- c // both pumps may report the same close

	require.Eventually(t, func() bool {
		loc, err := st.GetLocation(context.Background(), surveyor.ID)
		return err == nil && !loc.IsActive
	}, 2*time.Second, 10*time.Millisecond)

	// The send channel is closed exactly once; a double close would panic
	// the hub loop and the next registration would hang.
	c2 := addConn(t, h)
	send(h, c2, `not json`)
	env := recv(t, c2)
	assert.Equal(t, models.MsgError, env.Type)
}

func TestSnapshotIncludesOnlySurveyors(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)
	admin := seedUser(t, st, "boss", models.RoleAdmin)

	agent := addConn(t, h)
	authenticate(h, agent, surveyor.ID, models.RoleSurveyor)
	boss := addConn(t, h)
	authenticate(h, boss, admin.ID, models.RoleAdmin)

	sub := addConn(t, h)
	send(h, sub, `{"type":"subscribe","channel":"surveyor-locations"}`)
	env := recv(t, sub)
	require.Equal(t, models.ChannelLocations, env.Type)

	var snapshot []models.LocationWithUser
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Len(t, snapshot, 1, "the admin's own presence must never be included")
	assert.Equal(t, surveyor.ID, snapshot[0].UserID)
	assert.Equal(t, models.RoleSurveyor, snapshot[0].User.Role)
}

func TestPointRoundTrip(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	sub := addConn(t, h)
	send(h, sub, `{"type":"subscribe","channel":"surveyor-locations"}`)
	recv(t, sub) // initial empty snapshot

	agent := addConn(t, h)
	authenticate(h, agent, surveyor.ID, models.RoleSurveyor)
	env := recv(t, sub)
	require.Equal(t, models.ChannelLocations, env.Type)

	send(h, agent, `{"type":"subscribe","channel":"updateLocation","data":{"userId":%d,"location":{"type":"Point","coordinates":[20.5,10.25]}}}`, surveyor.ID)
	env = recv(t, sub)
	require.Equal(t, models.ChannelLocations, env.Type)

	var snapshot []models.LocationWithUser
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Len(t, snapshot, 1)
	assert.Equal(t, []float64{20.5, 10.25}, snapshot[0].Location.Coordinates,
		"coordinates must survive the round trip without an axis swap")
}

func TestMalformedMessageRepliesOnlyToSender(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)

	a := addConn(t, h)
	b := addConn(t, h)
	send(h, a, `{not json`)

	env := recv(t, a)
	require.Equal(t, models.MsgError, env.Type)
	var payload models.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.NotEmpty(t, payload.Message)

	recvNothing(t, a)
	recvNothing(t, b)
}

func TestInvalidLocationRejected(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	c := addConn(t, h)
	send(h, c, `{"type":"subscribe","channel":"updateLocation","data":{"userId":%d,"location":{"type":"Point","coordinates":[1,2,3]}}}`, surveyor.ID)
	env := recv(t, c)
	assert.Equal(t, models.MsgError, env.Type)

	_, err := st.GetLocation(context.Background(), surveyor.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "a failed validation must not persist anything")
}

func TestAuthenticateFansOutToSubscribersOnly(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)
	supervisor := seedUser(t, st, "lead", models.RoleSupervisor)

	// A: supervisor subscribed to surveyor-locations.
	a := addConn(t, h)
	authenticate(h, a, supervisor.ID, models.RoleSupervisor)
	recv(t, a) // own surveyor-status
	send(h, a, `{"type":"subscribe","channel":"surveyor-locations"}`)
	env := recv(t, a)
	require.Equal(t, models.ChannelLocations, env.Type)

	// C: connected but neither authenticated nor subscribed.
	c := addConn(t, h)

	// B: surveyor authenticating with an initial position.
	b := addConn(t, h)
	send(h, b, `{"type":"authenticate","data":{"userId":%d,"role":"surveyor","location":{"type":"Point","coordinates":[20,10]}}}`, surveyor.ID)

	env = recv(t, a)
	require.Equal(t, models.MsgSurveyorStatus, env.Type)
	var status models.SurveyorStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, surveyor.ID, status.UserID)
	assert.True(t, status.IsActive)

	env = recv(t, a)
	require.Equal(t, models.ChannelLocations, env.Type)
	var snapshot []models.LocationWithUser
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Len(t, snapshot, 1)
	assert.Equal(t, surveyor.ID, snapshot[0].UserID)
	assert.Equal(t, []float64{20, 10}, snapshot[0].Location.Coordinates)

	recvNothing(t, b)
	recvNothing(t, c)
}

func TestSubscribeResponsesSendsCatchup(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	for i := 0; i < 2; i++ {
		_, err := st.CreateResponse(context.Background(), store.NewResponse{
			SurveyID:       1,
			UserID:         surveyor.ID,
			Responses:      []models.Answer{{QuestionID: "q1", Answer: json.RawMessage(`"yes"`)}},
			RespondentInfo: models.RespondentInfo{Name: "resident"},
		})
		require.NoError(t, err)
	}

	c := addConn(t, h)
	send(h, c, `{"type":"subscribe","channel":"responses-survey"}`)
	env := recv(t, c)
	require.Equal(t, models.ChannelResponses, env.Type)
	var responses []models.SurveyResponse
	require.NoError(t, json.Unmarshal(env.Data, &responses))
	assert.Len(t, responses, 2)

	// The CRUD hook triggers a fresh full snapshot to subscribers.
	_, err := st.CreateResponse(context.Background(), store.NewResponse{
		SurveyID:       1,
		UserID:         surveyor.ID,
		Responses:      []models.Answer{{QuestionID: "q1", Answer: json.RawMessage(`"no"`)}},
		RespondentInfo: models.RespondentInfo{Name: "resident"},
	})
	require.NoError(t, err)
	h.NotifyResponsesChanged()

	env = recv(t, c)
	require.Equal(t, models.ChannelResponses, env.Type)
	require.NoError(t, json.Unmarshal(env.Data, &responses))
	assert.Len(t, responses, 3)
}

func TestAuthenticateIsFixedForConnectionLifetime(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	c := addConn(t, h)
	authenticate(h, c, surveyor.ID, models.RoleSurveyor)
	authenticate(h, c, surveyor.ID+100, models.RoleAdmin)

	env := recv(t, c)
	require.Equal(t, models.MsgError, env.Type)
}

func TestNotifyNeverBlocksCaller(t *testing.T) {
	// No Run loop draining the notices: repeated notifies must coalesce
	// into the queued token instead of stalling the calling goroutine.
	h := New(store.NewMemory(), zap.NewNop(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.NotifyResponsesChanged()
			h.NotifyLocationsChanged()
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notify blocked without a running hub loop")
	}
}

func TestCoalescedNotifyStillBroadcasts(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)

	c := addConn(t, h)
	send(h, c, `{"type":"subscribe","channel":"responses-survey"}`)
	env := recv(t, c)
	require.Equal(t, models.ChannelResponses, env.Type)

	_, err := st.CreateResponse(context.Background(), store.NewResponse{
		SurveyID:       1,
		UserID:         surveyor.ID,
		RespondentInfo: models.RespondentInfo{Name: "resident"},
	})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		h.NotifyResponsesChanged()
	}

	// However many notifies collapsed together, at least one broadcast
	// carries the persisted response.
	require.Eventually(t, func() bool {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return false
			}
			var env envelope
			if json.Unmarshal(payload, &env) != nil || env.Type != models.ChannelResponses {
				return false
			}
			var responses []models.SurveyResponse
			return json.Unmarshal(env.Data, &responses) == nil && len(responses) == 1
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	st := store.NewMemory()
	h := newTestHub(t, st)
	surveyor := seedUser(t, st, "walker", models.RoleSurveyor)
	other := seedUser(t, st, "runner", models.RoleSurveyor)

	slow := addConn(t, h)
	authenticate(h, slow, surveyor.ID, models.RoleSurveyor)
	send(h, slow, `{"type":"subscribe","channel":"surveyor-locations"}`)
	recv(t, slow)
	// Nobody drains slow from here on; fill its buffer completely.
	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte(`{}`)
	}

	agent := addConn(t, h)
	authenticate(h, agent, other.ID, models.RoleSurveyor)

	// The failed delivery evicts the slow connection and runs its close
	// handling, deactivating its surveyor.
	require.Eventually(t, func() bool {
		loc, err := st.GetLocation(context.Background(), surveyor.ID)
		return err == nil && !loc.IsActive
	}, 2*time.Second, 10*time.Millisecond)
}
