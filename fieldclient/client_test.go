package fieldclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/braianpx/fieldtrack/internal/models"
	"github.com/braianpx/fieldtrack/internal/store"
	"github.com/braianpx/fieldtrack/internal/ws"
)

type stubPositions struct {
	points []models.Point
}

func (s stubPositions) Positions(_ context.Context) (<-chan models.Point, error) {
	ch := make(chan models.Point, len(s.points))
	for _, p := range s.points {
		ch <- p
	}
	close(ch)
	return ch, nil
}

// startServer runs a real hub behind an httptest server and returns its
// websocket URL.
func startServer(t *testing.T, st store.Store) (string, *ws.Hub) {
	t.Helper()
	h := ws.New(st, zap.NewNop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(h, w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", h
}

func TestClientReceivesCatchupAndLocations(t *testing.T) {
	st := store.NewMemory()
	surveyor, err := st.CreateUser(context.Background(), "walker", "x", "Walker", models.RoleSurveyor)
	require.NoError(t, err)
	_, err = st.CreateResponse(context.Background(), store.NewResponse{
		SurveyID:       1,
		UserID:         surveyor.ID,
		Responses:      []models.Answer{{QuestionID: "q1", Answer: json.RawMessage(`"yes"`)}},
		RespondentInfo: models.RespondentInfo{Name: "resident"},
	})
	require.NoError(t, err)

	url, _ := startServer(t, st)
	client, err := New(Config{
		URL:            url,
		UserID:         surveyor.ID,
		Role:           models.RoleSurveyor,
		DebounceWindow: 20 * time.Millisecond,
		Positions: stubPositions{points: []models.Point{
			{Type: "Point", Coordinates: []float64{20, 10}},
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Run(ctx)
	}()

	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	// The responses-survey subscription replays the existing response once
	// the debounce window goes quiet.
	require.Eventually(t, func() bool {
		return len(client.Responses()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "resident", client.Responses()[0].RespondentInfo.Name)

	// The position watch ping lands in the location snapshot.
	require.Eventually(t, func() bool {
		locs := client.SurveyorLocations()
		return len(locs) == 1 && len(locs[0].Location.Coordinates) == 2 &&
			locs[0].Location.Coordinates[0] == 20
	}, 2*time.Second, 10*time.Millisecond)
	locs := client.SurveyorLocations()
	assert.Equal(t, surveyor.ID, locs[0].UserID)
	assert.Equal(t, models.RoleSurveyor, locs[0].User.Role)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop on context cancel")
	}
}

func TestClientReplacesLocationSnapshotWholesale(t *testing.T) {
	st := store.NewMemory()
	first, err := st.CreateUser(context.Background(), "walker", "x", "Walker", models.RoleSurveyor)
	require.NoError(t, err)
	second, err := st.CreateUser(context.Background(), "runner", "x", "Runner", models.RoleSurveyor)
	require.NoError(t, err)
	_, err = st.UpsertLocation(context.Background(), first.ID, nil, true)
	require.NoError(t, err)
	_, err = st.UpsertLocation(context.Background(), second.ID, nil, true)
	require.NoError(t, err)

	url, h := startServer(t, st)
	client, err := New(Config{URL: url, Role: models.RoleSupervisor})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	require.Eventually(t, func() bool {
		return len(client.SurveyorLocations()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// One surveyor goes inactive and the next snapshot shrinks: the client
	// must not merge it with what it held before.
	_, err = st.UpsertLocation(context.Background(), first.ID, nil, false)
	require.NoError(t, err)
	h.NotifyLocationsChanged()

	require.Eventually(t, func() bool {
		locs := client.SurveyorLocations()
		return len(locs) == 1 && locs[0].UserID == second.ID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientDropsSendWhenDisconnected(t *testing.T) {
	client, err := New(Config{URL: "ws://127.0.0.1:1/ws"})
	require.NoError(t, err)

	err = client.UpdateLocation(models.Point{Type: "Point", Coordinates: []float64{1, 2}})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, client.Connected())
}

func TestClientMinPingIntervalGatesSamples(t *testing.T) {
	st := store.NewMemory()
	surveyor, err := st.CreateUser(context.Background(), "walker", "x", "Walker", models.RoleSurveyor)
	require.NoError(t, err)

	url, _ := startServer(t, st)
	client, err := New(Config{
		URL:             url,
		UserID:          surveyor.ID,
		Role:            models.RoleSurveyor,
		MinPingInterval: time.Hour,
		Positions: stubPositions{points: []models.Point{
			{Type: "Point", Coordinates: []float64{1, 1}},
			{Type: "Point", Coordinates: []float64{2, 2}},
			{Type: "Point", Coordinates: []float64{3, 3}},
		}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	require.Eventually(t, func() bool {
		loc, err := st.GetLocation(context.Background(), surveyor.ID)
		return err == nil && len(loc.Location.Coordinates) == 2 && loc.Location.Coordinates[0] == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A whole interval has not elapsed, so the later samples never leave
	// the client.
	time.Sleep(100 * time.Millisecond)
	loc, err := st.GetLocation(context.Background(), surveyor.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, loc.Location.Coordinates)
}

// floodPositions emits samples as fast as the watch consumes them.
type floodPositions struct{}

func (floodPositions) Positions(ctx context.Context) (<-chan models.Point, error) {
	ch := make(chan models.Point)
	go func() {
		defer close(ch)
		p := models.Point{Type: "Point", Coordinates: []float64{1, 1}}
		for {
			select {
			case <-ctx.Done():
				return
			case ch <- p:
			}
		}
	}()
	return ch, nil
}

func TestClientSerializesConcurrentWriters(t *testing.T) {
	st := store.NewMemory()
	surveyor, err := st.CreateUser(context.Background(), "walker", "x", "Walker", models.RoleSurveyor)
	require.NoError(t, err)

	url, _ := startServer(t, st)
	client, err := New(Config{
		URL:       url,
		UserID:    surveyor.ID,
		Role:      models.RoleSurveyor,
		Positions: floodPositions{},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	require.Eventually(t, client.Connected, 2*time.Second, 10*time.Millisecond)

	// Shift toggles race the position watch on the same socket; the
	// websocket permits only one writer at a time, so interleaved writes
	// must be serialized rather than crash the process.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(300 * time.Millisecond)
		for time.Now().Before(deadline) {
			client.StartShift(nil)
			client.EndShift(&models.Point{Type: "Point", Coordinates: []float64{2, 2}})
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shift toggles did not finish")
	}

	loc, err := st.GetLocation(context.Background(), surveyor.ID)
	require.NoError(t, err)
	assert.Len(t, loc.Location.Coordinates, 2)
}

func TestClientRequiresURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
