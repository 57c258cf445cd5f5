package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"safetrip/internal/domain/user"
	"safetrip/internal/engine"
	"safetrip/internal/general/contracts"
	"safetrip/internal/general/jwt"
	"safetrip/internal/general/logger"
	"safetrip/internal/geoindex"
	"safetrip/internal/ingest"
	"safetrip/internal/observability"
	"safetrip/internal/presence"
	"safetrip/internal/router"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second

	authWindow   = 5 * time.Second
	readIdle     = 60 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// MembershipLookup resolves the active ride/trip ids a user belongs to, for
// auto-joining their channels at connect time.
type MembershipLookup interface {
	ActiveFor(ctx context.Context, userID string) ([]string, error)
}

// Gateway is the WebSocket edge: it authenticates connections with a
// first-frame JWT, tracks presence, routes inbound messages, and delivers
// fan-out events. One logical connection per user id; a reconnect replaces
// the previous registration.
type Gateway struct {
	logger   *logger.Logger
	jwtMgr   *jwt.Manager
	engine   *engine.Engine
	router   *router.Router
	registry *presence.Registry
	index    *geoindex.Index
	hotspots NearbyFunc       // optional external hotspot index
	rides    MembershipLookup // optional
	trips    MembershipLookup // optional

	forecast         ingest.WeatherFetcher // optional, enables per-connection rain checks
	forecastInterval time.Duration
	rainThresholdMM  float64

	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex
	active     sync.Map // user id -> *websocket.Conn currently registered
}

// NearbyFunc queries an external hotspot index; errors trigger the in-memory
// fallback.
type NearbyFunc func(ctx context.Context, lat, lng, radiusMeters float64, limit int) ([]contracts.Hotspot, error)

// NewGateway wires the connection edge. hotspots, rides, trips and forecast
// may be nil; the matching features degrade quietly.
func NewGateway(log *logger.Logger, jwtMgr *jwt.Manager, eng *engine.Engine, rt *router.Router, registry *presence.Registry, index *geoindex.Index) *Gateway {
	return &Gateway{
		logger:   log,
		jwtMgr:   jwtMgr,
		engine:   eng,
		router:   rt,
		registry: registry,
		index:    index,
	}
}

// WithMemberships enables ride/trip channel auto-join at connect time.
func (g *Gateway) WithMemberships(rides, trips MembershipLookup) *Gateway {
	g.rides, g.trips = rides, trips
	return g
}

// WithHotspots enables the external hotspot index for nearby queries.
func (g *Gateway) WithHotspots(nearby NearbyFunc) *Gateway {
	g.hotspots = nearby
	return g
}

// WithForecast enables the per-connection rain forecast task.
func (g *Gateway) WithForecast(fetcher ingest.WeatherFetcher, interval time.Duration, thresholdMM float64) *Gateway {
	g.forecast = fetcher
	g.forecastInterval = interval
	g.rainThresholdMM = thresholdMM
	return g
}

// Connect handles a client WebSocket connection with JWT auth.
func (g *Gateway) Connect(w http.ResponseWriter, r *http.Request) {
	// 1) Upgrade HTTP -> WS
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	// Teardown order (LIFO on return):
	defer conn.Close()              // close the socket last
	defer g.writeLocks.Delete(conn) // forget per-connection mutex (idempotent)

	// 2) Auth deadline
	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(authWindow)); err != nil {
		g.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		g.sendAuthError(conn, "internal server error")
		return
	}

	// 3) First frame must authenticate
	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			g.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			g.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		g.sendAuthError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}

	if msgType != websocket.TextMessage {
		g.logger.Error(r.Context(), "ws_auth_invalid_format", "Auth message must be text format", nil, nil)
		g.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, g.jwtMgr, user.RoleUser, user.RoleAdmin)
	if err != nil {
		g.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		// missing credential and rejected credential are distinct client bugs
		if errors.Is(err, jwt.ErrMissingToken) {
			g.sendAuthError(conn, "authentication failed: no credential supplied")
		} else {
			g.sendAuthError(conn, "authentication failed: invalid token")
		}
		return
	}
	userID := res.Claims.Subject
	role := res.Claims.Role

	// 4) Auth success ack
	if err := g.sendAuthSuccess(conn, userID); err != nil {
		g.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	g.logger.Info(r.Context(), "ws_connected", "User WebSocket connected",
		map[string]any{"user_id": userID, "role": role.String()})

	// 5) Reset read deadline after auth
	_ = conn.SetReadDeadline(time.Now().Add(readIdle))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readIdle))
	})

	// 6) Connection-scoped task context; cancelled at teardown so the ping
	// and forecast goroutines never outlive the socket
	taskCtx, cancelTask := context.WithCancel(context.Background())
	defer cancelTask()

	// 7) Ping loop with the per-connection writer lock
	go g.pingLoop(taskCtx, conn, userID)

	// 8) Register for fan-out; connection id is the user id. A reconnect
	// replaces the previous socket's sender, so teardown of shared per-user
	// state only runs if this socket is still the active one.
	g.active.Store(userID, conn)
	g.router.Register(userID, func(payload []byte) error {
		return g.wsWriteMessage(conn, websocket.TextMessage, payload)
	})
	g.router.Join(userID, contracts.UserChannel(userID))
	observability.ConnectedUsers.Inc()
	defer observability.ConnectedUsers.Dec()
	defer g.releaseUser(userID, conn)

	// per-connection routing state for membership and region/grid channel churn
	var state connState

	// 9) Auto-join channels for the user's active rides and trips
	g.joinMemberships(r.Context(), userID, &state)

	// 10) Per-connection forecast task
	if g.forecast != nil {
		go g.forecastLoop(taskCtx, conn, userID)
	}

	// 11) Read loop: route messages
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readIdle))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Error(r.Context(), "ws_unexpected_close", "User connection closed unexpectedly", err, map[string]any{
					"user_id": userID,
				})
				g.wsWriteClose(conn, websocket.CloseInternalServerErr, "internal error")
			} else {
				g.logger.Info(r.Context(), "ws_connection_closed", "User connection closed normally", map[string]any{
					"user_id": userID,
				})
				g.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		// Minimal envelope
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}

		if err := json.Unmarshal(payload, &msg); err != nil {
			g.sendError(conn, "bad json", "")
			continue
		}

		switch msg.Type {
		case contracts.MsgUpdateLocation:
			g.handleUpdateLocation(r.Context(), conn, userID, msg.Data, &state)

		case contracts.MsgSubmitFloodReport:
			g.handleFloodReport(r.Context(), conn, userID, msg.Data, &state)

		case contracts.MsgGetNearbyHotspots:
			g.handleNearbyHotspots(r.Context(), conn, userID, msg.Data)

		case contracts.MsgAdminBroadcast:
			g.handleAdminBroadcast(r.Context(), conn, userID, role, msg.Data)

		default:
			g.sendError(conn, "unknown message type", msg.Type)
		}
	}
}

// pingLoop keeps the connection alive until the task context is cancelled at
// teardown. A failed ping closes the socket to unblock the reader.
func (g *Gateway) pingLoop(ctx context.Context, conn *websocket.Conn, userID string) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		mu := g.lockOf(conn)
		mu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
		mu.Unlock()
		if err != nil {
			// close socket to unblock reader; goroutine exits
			_ = conn.Close()
			g.logger.Error(ctx, "ws_ping_failed", "Failed to send ping", err, map[string]any{
				"user_id": userID,
			})
			return
		}
	}
}

// releaseUser tears down the shared per-user state, unless another socket has
// taken over the registration in the meantime. Without the ownership check a
// draining old socket would wipe a reconnected user's sender, channels, and
// presence record.
func (g *Gateway) releaseUser(userID string, conn *websocket.Conn) {
	if g.active.CompareAndDelete(userID, conn) {
		g.router.LeaveAll(userID)
		g.registry.Remove(userID)
	}
}

// connState tracks which channels this connection currently occupies: the
// region/grid pair that follows the user's movement, and the ride/trip
// memberships resolved at connect time.
type connState struct {
	region string
	grid   string
	rides  []string
	trips  []string
}

// joinMemberships subscribes the connection to its active ride and trip
// channels. Lookup failure degrades to a user-channel-only session.
func (g *Gateway) joinMemberships(ctx context.Context, userID string, state *connState) {
	if g.rides != nil {
		rides, err := g.rides.ActiveFor(ctx, userID)
		if err != nil {
			g.logger.Error(ctx, "ride_lookup_failed", "Active ride lookup failed, skipping ride channels", err, map[string]any{
				"user_id": userID,
			})
		}
		for _, id := range rides {
			g.router.Join(userID, contracts.RideChannel(id))
		}
		state.rides = rides
	}
	if g.trips != nil {
		trips, err := g.trips.ActiveFor(ctx, userID)
		if err != nil {
			g.logger.Error(ctx, "trip_lookup_failed", "Active trip lookup failed, skipping trip channels", err, map[string]any{
				"user_id": userID,
			})
		}
		for _, id := range trips {
			g.router.Join(userID, contracts.TripChannel(id))
		}
		state.trips = trips
	}
}
