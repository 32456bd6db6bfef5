// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package channel

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/xid"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	sendQueueSize     = 256
	writeWait         = 10 * time.Second
	DefaultPath       = "/playout"
)

// Engine is everything the server needs from the playback engine.
type Engine interface {
	Controller
	Events() *playback.Emitter
	Status() playback.Status
}

// envelope is the outbound message: either an event or a reply to a call.
type envelope struct {
	Type   string  `json:"type"`
	Event  Record  `json:"event,omitempty"`
	ID     *int64  `json:"id,omitempty"`
	Result *bool   `json:"result,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// request is the inbound message.
type request struct {
	ID int64 `json:"id"`
	MethodCall
}

type statusResponse struct {
	State     string  `json:"state"`
	URL       string  `json:"url,omitempty"`
	SessionID string  `json:"session,omitempty"`
	Position  float64 `json:"position"`
	Rate      float64 `json:"rate"`
	Title     string  `json:"title,omitempty"`
	Subtitle  string  `json:"subtitle,omitempty"`
	Host      string  `json:"host,omitempty"`
}

// Server binds the engine to one host connection at a time. A new
// connection takes over the event stream from the previous one.
type Server struct {
	engine     Engine
	dispatcher *Dispatcher
	logger     logger.LoggerInterface
	upgrader   websocket.Upgrader
	router     *mux.Router

	mu      sync.Mutex
	current *hostConn
}

func NewServer(engine Engine, path string, logger logger.LoggerInterface) *Server {
	if path == "" {
		path = DefaultPath
	}
	s := &Server{
		engine:     engine,
		dispatcher: NewDispatcher(engine, logger),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufferSize,
			WriteBufferSize: wsWriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc(path, s.handleWS).Methods("GET")
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router = router
	return s
}

// Handler is the root HTTP handler, CORS enabled.
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

// Close drops the current connection, if any.
func (s *Server) Close() {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c != nil {
		c.close()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	rsp := statusResponse{
		State:     st.State.String(),
		URL:       st.URL,
		SessionID: st.SessionID,
		Position:  st.Position,
		Rate:      st.Rate,
		Title:     st.NowPlaying.Title,
		Subtitle:  st.NowPlaying.Artist,
	}
	s.mu.Lock()
	if s.current != nil {
		rsp.Host = s.current.id
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		s.logger.PrintError("status", err)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.PrintError("upgrade", err)
		return
	}

	c := &hostConn{
		id:      xid.New().String(),
		conn:    conn,
		send:    make(chan envelope, sendQueueSize),
		closing: make(chan struct{}),
		logger:  s.logger,
	}
	s.attach(c)
	s.logger.Printf("channel: host %s connected from %s", c.id, conn.RemoteAddr())

	go c.writeLoop()
	s.readLoop(c)
}

func (s *Server) attach(c *hostConn) {
	s.mu.Lock()
	previous := s.current
	s.current = c
	s.engine.Events().Subscribe(c)
	s.mu.Unlock()

	if previous != nil {
		s.logger.Printf("channel: host %s replaced by %s", previous.id, c.id)
		previous.close()
	}
}

func (s *Server) detach(c *hostConn) {
	s.mu.Lock()
	if s.current == c {
		s.current = nil
		s.engine.Events().Unsubscribe()
	}
	s.mu.Unlock()
	c.close()
	s.logger.Printf("channel: host %s disconnected", c.id)
}

func (s *Server) readLoop(c *hostConn) {
	defer s.detach(c)
	for {
		_, m, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.PrintError("channel read", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(m, &req); err != nil {
			s.logger.Printf("channel: invalid message from %s: %s", c.id, string(m))
			s.engine.Reject(fmt.Errorf("%w: %s", ErrMalformedMessage, err.Error()))
			continue
		}

		ok, err := s.dispatcher.Dispatch(req.MethodCall)
		reply := envelope{Type: "reply", ID: &req.ID, Result: &ok}
		if err != nil {
			msg := err.Error()
			reply.Error = &msg
		}
		c.enqueue(reply)
	}
}

// hostConn is one websocket connection. It implements playback.Sink.
type hostConn struct {
	id        string
	conn      *websocket.Conn
	send      chan envelope
	closing   chan struct{}
	closeOnce sync.Once
	logger    logger.LoggerInterface
}

// Send never blocks: it runs on the engine's control loop.
func (c *hostConn) Send(ev playback.Event) {
	c.enqueue(envelope{Type: "event", Event: Encode(ev)})
}

func (c *hostConn) enqueue(e envelope) {
	select {
	case <-c.closing:
		return
	default:
	}
	select {
	case c.send <- e:
	default:
		c.logger.Printf("channel: host %s is not reading, dropping %s", c.id, e.Type)
	}
}

func (c *hostConn) close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		c.conn.Close()
	})
}

func (c *hostConn) writeLoop() {
	defer c.close()
	for {
		select {
		case e := <-c.send:
			b, err := json.Marshal(e)
			if err != nil {
				c.logger.PrintError("channel encode", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.logger.PrintError("channel write", err)
				return
			}
		case <-c.closing:
			return
		}
	}
}
