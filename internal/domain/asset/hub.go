package asset

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"commerce/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

const (
	EventAssetCreated     = "asset.created"
	EventAssetDeleted     = "asset.deleted"
	EventAssetSoftDeleted = "asset.soft_deleted"
)

// Event is pushed to every subscriber of ChannelID after a change commits.
type Event struct {
	Type      string `json:"type"`
	ChannelID int64  `json:"channel_id"`
	Asset     Fields `json:"asset"`
}

type subscriber struct {
	channelID int64
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans asset events out to websocket subscribers grouped by channel.
type Hub struct {
	mu       sync.RWMutex
	channels map[int64]map[*subscriber]struct{}
	origins  map[string]bool
	upgrader websocket.Upgrader
	log      *logger.Log
}

// NewHub accepts browser upgrades from allowedOrigins and from the serving
// host itself. Requests without an Origin header are not from browsers and
// are let through.
func NewHub(log *logger.Log, allowedOrigins ...string) *Hub {
	if log == nil {
		log = logger.Get()
	}
	h := &Hub{
		channels: make(map[int64]map[*subscriber]struct{}),
		origins:  make(map[string]bool, len(allowedOrigins)),
		log:      log.WithEntryName("AssetHub"),
	}
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			h.origins[o] = true
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	h.log.WithField("origin", origin).Warn("websocket origin rejected")
	return false
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[s.channelID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.channels[s.channelID] = subs
	}
	subs[s] = struct{}{}
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.channels[s.channelID]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.send)
	if len(subs) == 0 {
		delete(h.channels, s.channelID)
	}
}

// Subscribers reports how many connections listen on channelID.
func (h *Hub) Subscribers(channelID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.log.WithErr(err).Warn("marshal asset event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.channels[e.ChannelID] {
		select {
		case s.send <- data:
		default:
			h.log.WithField("channel_id", e.ChannelID).Debug("subscriber too slow, event dropped")
		}
	}
}

// Serve upgrades the request and streams events of channelID until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, channelID int64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	s := &subscriber{
		channelID: channelID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	h.register(s)

	go h.writePump(s)
	h.readPump(s)
	return nil
}

// readPump only drains control frames; clients never send data.
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMsgSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithErr(err).WithField("channel_id", s.channelID).Debug("asset events connection closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
