package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chepyr/task-store/internal/models"
)

func TestCORS_AllowedOrigin(t *testing.T) {
	_, router := setupHTTP(t)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ForeignOriginRejected(t *testing.T) {
	_, router := setupHTTP(t)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightAllowsAnyMethodAndHeader(t *testing.T) {
	_, router := setupHTTP(t)

	req := httptest.NewRequest(http.MethodOptions, "/tasks/1", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Custom-Header")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Equal(t, "Content-Type, X-Custom-Header", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	_, router := setupHTTP(t)

	rec := doJSON(t, router, http.MethodGet, "/tasks", "")
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCheckOrigin(t *testing.T) {
	check := originChecker(testOrigin)

	noOrigin := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", testOrigin)
	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://c.example")

	assert.True(t, check(noOrigin), "non-browser clients send no Origin")
	assert.True(t, check(allowed))
	assert.False(t, check(denied))
}

func dialFeed(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) TaskEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event TaskEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestWebSocket_BroadcastsTaskChanges(t *testing.T) {
	h, router := setupHTTP(t)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialFeed(t, server)
	require.Eventually(t, func() bool { return h.WSHub.Count() == 1 }, time.Second, 10*time.Millisecond)

	created := createTask(t, router, validTaskBody)
	event := readEvent(t, conn)
	assert.Equal(t, EventTaskCreated, event.Event)
	assert.Equal(t, created.ID, event.TaskID)
	require.NotNil(t, event.Task)
	assert.Equal(t, created, *event.Task)

	rec := doJSON(t, router, http.MethodPut, "/tasks/"+itoa(created.ID),
		`{"title":"Write docs","due_date":"2024-05-01","tag":"docs","priority":"High","status":"Done","progress":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	event = readEvent(t, conn)
	assert.Equal(t, EventTaskUpdated, event.Event)
	require.NotNil(t, event.Task)
	assert.Equal(t, models.TaskStatusDone, event.Task.Status)

	rec = doJSON(t, router, http.MethodDelete, "/tasks/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	event = readEvent(t, conn)
	assert.Equal(t, EventTaskDeleted, event.Event)
	assert.Equal(t, created.ID, event.TaskID)
	assert.Nil(t, event.Task)
}

func TestWebSocket_NoEventOnFailedWrite(t *testing.T) {
	h, router := setupHTTP(t)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialFeed(t, server)
	require.Eventually(t, func() bool { return h.WSHub.Count() == 1 }, time.Second, 10*time.Millisecond)

	rec := doJSON(t, router, http.MethodDelete, "/tasks/77", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no event expected")
}

func TestWebSocket_StalledWriteDoesNotBlockHub(t *testing.T) {
	h, router := setupHTTP(t)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialFeed(t, server)
	require.Eventually(t, func() bool { return h.WSHub.Count() == 1 }, time.Second, 10*time.Millisecond)

	clients := h.WSHub.clients()
	require.Len(t, clients, 1)
	// hold the connection as if a previous write were stuck
	clients[0].writeMu.Lock()

	done := make(chan struct{})
	go func() {
		h.WSHub.Broadcast(TaskEvent{Event: EventTaskDeleted, TaskID: 9})
		close(done)
	}()

	dialFeed(t, server)
	require.Eventually(t, func() bool { return h.WSHub.Count() == 2 }, time.Second, 10*time.Millisecond,
		"a new client must register while a broadcast is in flight")
	select {
	case <-done:
		t.Fatal("broadcast returned before the held write was released")
	default:
	}

	clients[0].writeMu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not finish")
	}
	event := readEvent(t, conn)
	assert.Equal(t, EventTaskDeleted, event.Event)
	assert.Equal(t, int64(9), event.TaskID)
}

func TestWebSocket_CloseDisconnectsClients(t *testing.T) {
	h, router := setupHTTP(t)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialFeed(t, server)
	require.Eventually(t, func() bool { return h.WSHub.Count() == 1 }, time.Second, 10*time.Millisecond)

	h.WSHub.Close()
	assert.Equal(t, 0, h.WSHub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestWebSocket_RateLimited(t *testing.T) {
	h, router := setupHTTP(t)
	h.RateLimiter.Stop()
	h.RateLimiter = NewRateLimiter(1, time.Minute)
	t.Cleanup(h.RateLimiter.Stop)
	server := httptest.NewServer(router)
	defer server.Close()

	dialFeed(t, server)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestNewRateLimiter(t *testing.T) {
	limit := 5
	window := 1 * time.Second
	rl := NewRateLimiter(limit, window)
	defer rl.Stop()

	assert.Equal(t, limit, rl.limit)
	assert.Equal(t, window, rl.window)
	assert.NotNil(t, rl.attempts)
}

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		attempts []string // IPs to attempt
		expected []bool
	}{
		{
			name:     "Within limit",
			limit:    2,
			attempts: []string{"192.168.1.1", "192.168.1.1"},
			expected: []bool{true, true},
		},
		{
			name:     "Exceed limit",
			limit:    1,
			attempts: []string{"192.168.1.1", "192.168.1.1"},
			expected: []bool{true, false},
		},
		{
			name:     "Multiple IPs",
			limit:    1,
			attempts: []string{"192.168.1.1", "192.168.1.2"},
			expected: []bool{true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(tt.limit, 1*time.Second)
			defer rl.Stop()
			for i, ip := range tt.attempts {
				assert.Equal(t, tt.expected[i], rl.Allow(ip), "attempt %d for IP %s", i+1, ip)
			}
		})
	}
}

func TestRateLimiter_ResetsAfterWindow(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Stop()

	ip := "1.2.3.4"
	require.True(t, rl.Allow(ip))
	require.True(t, rl.Allow(ip))
	require.False(t, rl.Allow(ip), "third attempt should be blocked")

	assert.Eventually(t, func() bool { return rl.Allow(ip) }, time.Second, 10*time.Millisecond)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(3, 1*time.Second)
	defer rl.Stop()
	ip := "192.168.1.1"
	var wg sync.WaitGroup
	results := make([]bool, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = rl.Allow(ip)
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, ok := range results {
		if ok {
			allowed++
		}
	}
	assert.Equal(t, rl.limit, allowed)
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
