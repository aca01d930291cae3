package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studyquiz/internal/app"
	"studyquiz/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and drives one quiz session over the socket.
// With ?quizId the stored quiz is opened (and resumed for ?userId); without
// it the first message must be {"type":"start","payload":<quiz>}.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	userID := r.URL.Query().Get("userId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	c := newWSClient(conn, h.log)
	defer c.shutdown()

	session, err := h.open(ctx, conn, userID, quizID)
	if err != nil {
		c.send(errorMessage(err))
		return
	}
	c.follow(session)
	defer func() {
		c.unfollow()
		h.service.Leave(session)
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.send(errorMessage(domain.ErrInvalidAnswer))
				continue
			}
			feedback, err := session.SubmitAnswer(ctx, payload.QuestionIndex, payload.Answer)
			if err != nil {
				c.send(errorMessage(err))
				continue
			}
			c.send(outboundMessage{Type: "feedback", Payload: feedback})
		case "next", "previous":
			move := session.Next
			if inbound.Type == "previous" {
				move = session.Previous
			}
			if _, err := move(ctx); err != nil {
				c.send(errorMessage(err))
			}
		case "finalize":
			result, err := session.FinalizeAndSummarize(ctx)
			if err != nil && !errors.Is(err, domain.ErrPersistenceFailed) {
				c.send(errorMessage(err))
				continue
			}
			c.send(outboundMessage{Type: "result", Payload: result})
			if err != nil {
				c.send(errorMessage(err))
			}
		case "remediate":
			practice, err := h.service.Remediate(ctx, session)
			if err != nil {
				c.send(errorMessage(err))
				continue
			}
			c.unfollow()
			h.service.Leave(session)
			session = practice
			c.follow(session)
		case "state":
			c.send(outboundMessage{Type: "state", Payload: session.View()})
		default:
			c.send(outboundMessage{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}})
		}
	}
}

func (h *WSHandler) open(ctx context.Context, conn *websocket.Conn, userID, quizID string) (*app.Session, error) {
	if quizID != "" {
		return h.service.Start(ctx, userID, quizID)
	}
	var inbound inboundMessage
	if err := conn.ReadJSON(&inbound); err != nil {
		return nil, err
	}
	if inbound.Type != "start" {
		return nil, domain.ErrSessionNotFound
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(inbound.Payload, &quiz); err != nil {
		return nil, domain.ErrMalformedQuestion
	}
	return h.service.StartEphemeral(ctx, userID, quiz)
}

// wsClient serializes writes to one connection. Session views are forwarded
// by a goroutine per followed session.
type wsClient struct {
	conn     *websocket.Conn
	log      *zap.Logger
	out      chan outboundMessage
	done     chan struct{}
	stop     func()
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWSClient(conn *websocket.Conn, logger *zap.Logger) *wsClient {
	c := &wsClient{
		conn: conn,
		log:  logger,
		out:  make(chan outboundMessage, 16),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsClient) writeLoop() {
	defer close(c.done)
	failed := false
	for msg := range c.out {
		if failed {
			continue
		}
		if err := c.conn.WriteJSON(msg); err != nil {
			c.log.Debug("ws write error", zap.Error(err))
			failed = true
		}
	}
}

func (c *wsClient) send(msg outboundMessage) {
	c.out <- msg
}

// follow pushes the session's quiz, then every view it publishes. A view
// carrying a new quiz revision is preceded by the refreshed quiz.
func (c *wsClient) follow(session *app.Session) {
	views, cancel := session.Subscribe()
	c.stop = cancel
	c.send(outboundMessage{Type: "quizUpdated", Payload: session.Quiz()})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		revision := session.Quiz().UpdatedAt
		for view := range views {
			if !view.Revision.Equal(revision) {
				revision = view.Revision
				c.send(outboundMessage{Type: "quizUpdated", Payload: session.Quiz()})
			}
			c.send(outboundMessage{Type: "state", Payload: view})
		}
	}()
}

func (c *wsClient) unfollow() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
	c.wg.Wait()
}

func (c *wsClient) shutdown() {
	c.stopOnce.Do(func() {
		c.unfollow()
		close(c.out)
		<-c.done
	})
}
