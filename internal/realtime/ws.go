package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Handler streams the events of the :room path parameter to a websocket
// client as JSON text frames. Frames sent by the client are discarded.
func Handler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		room := c.Param("room")
		if !ValidRoom(room) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid room")
		}

		// subscribe first so nothing published during the handshake is lost
		sub := hub.Subscribe(room)
		defer hub.Unsubscribe(sub)

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			log.Debug().Err(err).Str("room", room).Msg("websocket accept failed")
			return nil
		}
		defer conn.CloseNow()

		logger := log.With().Str("room", room).Str("remote", c.RealIP()).Logger()
		logger.Debug().Msg("websocket client connected")
		defer logger.Debug().Msg("websocket client disconnected")

		ctx := conn.CloseRead(c.Request().Context())
		ping := time.NewTicker(pingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-sub.C:
				if !ok {
					return nil
				}
				if err := write(ctx, conn, e); err != nil {
					logger.Debug().Err(err).Msg("websocket write failed")
					return nil
				}
			case <-ping.C:
				pctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return nil
				}
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
