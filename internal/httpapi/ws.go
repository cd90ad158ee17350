package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 20 * time.Second
)

// handleWS streams every finished run report as a JSON text message.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if s.cors != nil {
		if s.cors.allowAll {
			opts.InsecureSkipVerify = true
		} else {
			for origin := range s.cors.origins {
				opts.OriginPatterns = append(opts.OriginPatterns, hostOf(origin))
			}
		}
	}
	conn, err := websocket.Accept(baseWriter(w), r, opts)
	if err != nil {
		log.Printf("httpapi: ws accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ch, ok := s.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.unsubscribe(ch)

	s.metrics.IncWSClients(1)
	defer s.metrics.IncWSClients(-1)

	// Clients never send data; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case report, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(wctx, conn, report)
			cancel()
			if err != nil {
				return
			}
			s.metrics.IncReportsSent()
		}
	}
}

func hostOf(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(origin) > len(prefix) && origin[:len(prefix)] == prefix {
			return origin[len(prefix):]
		}
	}
	return origin
}
