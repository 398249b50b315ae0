package handlers

import (
	"context"
	"net/http"
	"slices"

	"github.com/careline/realtime/internal/auth"
	ws "github.com/careline/realtime/internal/websocket"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type WebSocketHandlers struct {
	authService *auth.Service
	hub         *ws.Hub
	opts        ws.ClientOptions
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

// NewWebSocketHandlers accepts upgrades from the listed origins; "*" allows
// any origin.
func NewWebSocketHandlers(authService *auth.Service, hub *ws.Hub, opts ws.ClientOptions, origins []string, log zerolog.Logger) *WebSocketHandlers {
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	return &WebSocketHandlers{
		authService: authService,
		hub:         hub,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || slices.Contains(origins, origin)
			},
		},
		log: log.With().Str("component", "ws-handler").Logger(),
	}
}

func (h *WebSocketHandlers) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket authenticates the request, upgrades it and runs the
// connection until it closes.
func (h *WebSocketHandlers) HandleWebSocket(c echo.Context) error {
	userID, err := h.authService.Authenticate(c.Request())
	if err != nil {
		h.log.Debug().Err(err).Str("remote_ip", c.RealIP()).Msg("websocket auth failed")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil
	}

	// The connection outlives the request.
	ctx := context.WithoutCancel(c.Request().Context())

	client := ws.NewClient(h.hub, conn, userID, h.opts)
	go client.WritePump()
	h.hub.Register(ctx, client)
	go client.ReadPump(ctx)

	h.log.Debug().Str("user_id", client.UserID()).Str("connection_id", client.ID()).Str("remote_ip", c.RealIP()).Msg("websocket upgraded")
	return nil
}
