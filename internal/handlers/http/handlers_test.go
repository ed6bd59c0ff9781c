package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/services"
	"roomlink/internal/infrastructure/middleware"
	"roomlink/internal/infrastructure/repositories/memory"
	"roomlink/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	return router
}

func do(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMinutesHandler_SubmitAndFetch(t *testing.T) {
	router := newRouter(t)
	svc := services.NewMinutesService(memory.NewMemoryTranscriptRepository(), nil)
	NewMinutesHandler(svc).SetupRoutes(router)

	w := do(router, http.MethodPost, "/api/transcript", map[string]interface{}{
		"sessionId": "standup-1",
		"transcript": []string{
			"Morning everyone",
			"Alice will send the report",
			"Action item: update the roadmap",
			"alice will send the report",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodGet, "/api/mom/standup-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var minutes domain.Minutes
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &minutes))
	assert.Equal(t, []string{"Alice will send the report", "Action item: update the roadmap"}, minutes.ActionItems)
}

func TestMinutesHandler_InvalidBody(t *testing.T) {
	router := newRouter(t)
	NewMinutesHandler(services.NewMinutesService(memory.NewMemoryTranscriptRepository(), nil)).SetupRoutes(router)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty", body: map[string]interface{}{}},
		{name: "missing transcript", body: map[string]interface{}{"sessionId": "s1"}},
		{name: "bad session id", body: map[string]interface{}{"sessionId": "a b", "transcript": []string{"x"}}},
		{name: "wrong type", body: map[string]interface{}{"sessionId": "s1", "transcript": "not a list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/api/transcript", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestMinutesHandler_UnknownSession(t *testing.T) {
	router := newRouter(t)
	NewMinutesHandler(services.NewMinutesService(memory.NewMemoryTranscriptRepository(), nil)).SetupRoutes(router)

	w := do(router, http.MethodGet, "/api/mom/nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type mockRoomDirectory struct {
	mock.Mock
}

func (m *mockRoomDirectory) Stats(ctx context.Context) (signal.HubStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(signal.HubStats), args.Error(1)
}

func (m *mockRoomDirectory) Members(ctx context.Context, roomID domain.RoomID) ([]domain.PeerID, error) {
	args := m.Called(ctx, roomID)
	members, _ := args.Get(0).([]domain.PeerID)
	return members, args.Error(1)
}

func TestRoomHandler(t *testing.T) {
	rooms := &mockRoomDirectory{}
	rooms.On("Stats", mock.Anything).Return(signal.HubStats{Rooms: 2, Connections: 5}, nil)
	rooms.On("Members", mock.Anything, domain.RoomID("r1")).Return([]domain.PeerID{"peer_a", "peer_b"}, nil)
	rooms.On("Members", mock.Anything, domain.RoomID("gone")).Return(nil, domain.ErrRoomNotFound)

	router := newRouter(t)
	NewRoomHandler(rooms).SetupRoutes(router)

	w := do(router, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":2,"connections":5}`, w.Body.String())

	w = do(router, http.MethodGet, "/api/rooms/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"room_id":"r1","members":["peer_a","peer_b"]}`, w.Body.String())

	w = do(router, http.MethodGet, "/api/rooms/gone", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
