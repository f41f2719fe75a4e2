package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/hcbridge/internal/infrastructure/config"
	"github.com/nerrad567/hcbridge/internal/infrastructure/logging"
	"github.com/nerrad567/hcbridge/internal/mirror"
)

// Stream message types.
const (
	MsgSubscribe  = "subscribe"
	MsgSubscribed = "subscribed"
	MsgPing       = "ping"
	MsgPong       = "pong"
	MsgEvent      = "event"
	MsgError      = "error"
)

// streamBuffer is the number of frames queued per client before events are
// dropped for it.
const streamBuffer = 256

// Keepalive fallbacks for an unset config.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// streamChannels are the channels a client may subscribe to. A client that
// names none receives all of them.
var streamChannels = []string{
	mirror.ChannelCharacteristic,
	mirror.ChannelCommand,
	mirror.ChannelCycle,
}

// StreamMessage is the frame exchanged in both directions.
//
// Clients send subscribe (replacing their filter) and ping. The server sends
// event, subscribed, pong and error. Seq increases by one per broadcast, so a
// gap tells the client that events were dropped for it.
type StreamMessage struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channel  string   `json:"channel,omitempty"`
	Seq      uint64   `json:"seq,omitempty"`
	Time     string   `json:"time,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Subtypes []string `json:"subtypes,omitempty"`
	Payload  any      `json:"payload,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// subtyped is implemented by events that concern a single service.
type subtyped interface {
	EventSubtype() string
}

func eventSubtype(payload any) string {
	switch p := payload.(type) {
	case subtyped:
		return p.EventSubtype()
	case map[string]any:
		s, _ := p["subtype"].(string)
		return s
	}
	return ""
}

// filter selects the events a client receives. The subtype set only
// applies to events that carry a subtype; empty means every service.
type filter struct {
	channels map[string]bool
	subtypes map[string]bool
}

func newFilter(channels, subtypes []string) (filter, error) {
	f := filter{channels: make(map[string]bool), subtypes: make(map[string]bool)}
	if len(channels) == 0 {
		channels = streamChannels
	}
	for _, ch := range channels {
		if !knownChannel(ch) {
			return filter{}, fmt.Errorf("unknown channel %q", ch)
		}
		f.channels[ch] = true
	}
	for _, st := range subtypes {
		f.subtypes[st] = true
	}
	return f, nil
}

func knownChannel(ch string) bool {
	for _, c := range streamChannels {
		if c == ch {
			return true
		}
	}
	return false
}

func (f filter) match(channel, subtype string) bool {
	if !f.channels[channel] {
		return false
	}
	return subtype == "" || len(f.subtypes) == 0 || f.subtypes[subtype]
}

func (f filter) lists() (channels, subtypes []string) {
	for _, ch := range streamChannels {
		if f.channels[ch] {
			channels = append(channels, ch)
		}
	}
	for st := range f.subtypes {
		subtypes = append(subtypes, st)
	}
	return channels, subtypes
}

// stream is one connected client.
type stream struct {
	conn *websocket.Conn
	out  chan []byte

	mu      sync.Mutex
	filter  filter
	closed  bool
	dropped uint64
}

func newStream(conn *websocket.Conn, f filter) *stream {
	return &stream{conn: conn, out: make(chan []byte, streamBuffer), filter: f}
}

func (s *stream) wants(channel, subtype string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.match(channel, subtype)
}

func (s *stream) setFilter(f filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// deliver queues data without blocking. It reports false when the client
// is gone or too slow.
func (s *stream) deliver(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- data:
		return true
	default:
		s.dropped++
		return false
	}
}

// close ends the writer. Safe to call more than once.
func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func (s *stream) reply(msg StreamMessage) {
	msg.Time = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.deliver(data)
}

// Hub fans mirror events out to connected clients. It implements
// mirror.Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	seq     atomic.Uint64
	dropped atomic.Uint64

	mu      sync.RWMutex
	streams map[*stream]struct{}
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		streams: make(map[*stream]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	streams := h.streams
	h.streams = make(map[*stream]struct{})
	h.mu.Unlock()

	for s := range streams {
		s.close()
	}
}

func (h *Hub) add(s *stream) {
	h.mu.Lock()
	h.streams[s] = struct{}{}
	n := len(h.streams)
	h.mu.Unlock()
	h.logger.Debug("stream client connected", "clients", n)
}

func (h *Hub) remove(s *stream) {
	h.mu.Lock()
	delete(h.streams, s)
	n := len(h.streams)
	h.mu.Unlock()
	s.close()

	s.mu.Lock()
	dropped := s.dropped
	s.mu.Unlock()
	h.logger.Debug("stream client disconnected", "clients", n, "dropped", dropped)
}

// Broadcast sends payload on channel to every client whose filter matches.
func (h *Hub) Broadcast(channel string, payload any) {
	subtype := eventSubtype(payload)
	data, err := json.Marshal(StreamMessage{
		Type:    MsgEvent,
		Channel: channel,
		Seq:     h.seq.Add(1),
		Time:    time.Now().UTC().Format(time.RFC3339),
		Payload: payload,
	})
	if err != nil {
		h.logger.Error("failed to encode stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*stream, 0, len(h.streams))
	for s := range h.streams {
		if s.wants(channel, subtype) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.deliver(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

// Dropped returns the number of events not delivered to slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// keepalive returns the ping interval and pong wait from cfg.
func keepalive(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket streams mirror events. The initial filter comes from
// ?channels=a,b and ?subtypes=x,y.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := newFilter(splitList(q.Get("channels")), splitList(q.Get("subtypes")))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	st := newStream(conn, f)
	s.hub.add(st)
	ping, pong := keepalive(s.wsCfg)
	go st.write(ping, pong)
	s.hub.serve(st, ping+pong)
}

// serve reads client frames until the connection fails.
func (h *Hub) serve(s *stream, idle time.Duration) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	if h.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(int64(h.cfg.MaxMessageSize))
	}
	extend := func() error { return s.conn.SetReadDeadline(time.Now().Add(idle)) }
	if err := extend(); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("stream read failed", "error", err)
			}
			return
		}
		if err := extend(); err != nil {
			return
		}
		h.handleFrame(s, data)
	}
}

func (h *Hub) handleFrame(s *stream, data []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(StreamMessage{Type: MsgError, Error: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case MsgPing:
		s.reply(StreamMessage{Type: MsgPong, ID: msg.ID})
	case MsgSubscribe:
		f, err := newFilter(msg.Channels, msg.Subtypes)
		if err != nil {
			s.reply(StreamMessage{Type: MsgError, ID: msg.ID, Error: err.Error()})
			return
		}
		s.setFilter(f)
		channels, subtypes := f.lists()
		s.reply(StreamMessage{Type: MsgSubscribed, ID: msg.ID, Channels: channels, Subtypes: subtypes})
	default:
		s.reply(StreamMessage{Type: MsgError, ID: msg.ID, Error: "unknown message type: " + msg.Type})
	}
}

// write drains the outbound queue and pings on every interval.
func (s *stream) write(ping, wait time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	send := func(kind int, data []byte) error {
		if err := s.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
			return err
		}
		return s.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-s.out:
			if !ok {
				//nolint:errcheck // connection is closing
				send(websocket.CloseMessage, nil)
				return
			}
			if send(websocket.TextMessage, data) != nil {
				return
			}
		case <-ticker.C:
			if send(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
