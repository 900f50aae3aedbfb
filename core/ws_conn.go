package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one websocket connection of a user session. Inbound events are
// stamped with the user and session ids before they reach the event router.
type Conn struct {
	conn             *websocket.Conn
	context          context.Context
	userID           ID
	sessionID        string
	writeStream      chan *Event
	readStream       chan<- *Event
	notifyDisconnect func()
	ticker           *time.Ticker
	logger           *slog.Logger
}

// Send implements EventSink. It never blocks: a full write stream reports
// false and the caller decides what to do with the session.
func (c *Conn) Send(e *Event) bool {
	select {
	case c.writeStream <- e:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	close(c.writeStream)
}

func (c *Conn) readLoop() {
	c.logger.Info("read loop started")
	defer func() {
		c.notifyDisconnect()
		c.conn.Close()
		c.logger.Info("read loop stopped")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		format, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			c.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var event Event
		if err := DecodeEvent(r, &event); err != nil {
			c.logger.Error(err.Error())
			continue
		}
		event.Dispatcher = c.userID
		event.Session = c.sessionID

		c.logger.Debug(event.String())

		c.readStream <- &event
	}
}

func (c *Conn) writeLoop() {
	c.logger.Info("write loop started")
	var err error
	defer func() {
		c.ticker.Stop()
		if err != nil {
			c.conn.Close()
		}
		c.logger.Info("write loop stopped")
	}()

	for {
		select {
		case e, ok := <-c.writeStream:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				return
			}
			if err := EncodeEvent(w, e); err != nil {
				c.logger.Error(err.Error())
			}
			w.Close()
		case <-c.context.Done():
			return
		case <-c.ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err = c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}
