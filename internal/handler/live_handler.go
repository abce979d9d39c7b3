package handler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pagesmith/internal/service"
)

const liveWriteTimeout = 10 * time.Second

// LivePage streams a page over a websocket: the current record first (null
// when the page does not exist yet), then every committed record.
func (a *API) LivePage(c *gin.Context) {
	ctx := c.Request.Context()
	slug, key := c.Param("slug"), c.Param("key")

	topic, err := a.pages.Topic(ctx, slug, key)
	if err != nil {
		a.respondServiceError(c, err)
		return
	}

	// 先订阅再读取当前记录，避免漏掉中间的提交
	updates, cancel := a.feed.Subscribe(topic)
	defer cancel()

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.log.Debug().Err(err).Msg("live upgrade")
		return
	}
	defer conn.Close()

	initial, err := a.currentRecord(c, slug, key)
	if err != nil {
		a.log.Error().Err(err).Str("topic", topic).Msg("load live page")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "load failed"),
			time.Now().Add(liveWriteTimeout))
		return
	}
	if err := writeLive(conn, initial); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(a.livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ctx.Done():
			return
		case payload, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(liveWriteTimeout))
				return
			}
			if err := writeLive(conn, payload); err != nil {
				a.log.Debug().Err(err).Str("topic", topic).Msg("live write")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (a *API) currentRecord(c *gin.Context, slug, key string) ([]byte, error) {
	page, err := a.pages.GetByKey(c.Request.Context(), slug, key)
	if errors.Is(err, service.ErrPageNotFound) {
		return []byte("null"), nil
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(service.NewPageRecord(page))
}

func writeLive(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
