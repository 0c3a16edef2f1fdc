package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"family_messaging_service/internal/chat/domain"
	"family_messaging_service/internal/chat/repository"
	errprocess "family_messaging_service/pkg/err"
	"family_messaging_service/pkg/logger"
	"family_messaging_service/pkg/middlewares"
)

// ChatWebsocketHandler is the realtime gateway: one personal redis
// subscription per connection, chat events filtered by the connection's
// subscribed chat set.
type ChatWebsocketHandler struct {
	chatUC    *ChatUseCase
	messageUC *MessageUseCase
	chats     repository.ChatRepository
	pubsub    *repository.RedisPubSub
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	chatUC *ChatUseCase,
	messageUC *MessageUseCase,
	chats repository.ChatRepository,
	pubsub *repository.RedisPubSub,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		chatUC:    chatUC,
		messageUC: messageUC,
		chats:     chats,
		pubsub:    pubsub,
	}
}

// connState is the per-connection view of what the client is watching.
type connState struct {
	mu    sync.Mutex
	chats map[string]bool

	writeMu sync.Mutex
}

func (s *connState) subscribed(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chats[chatID]
}

func (s *connState) set(chatID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.chats[chatID] = true
	} else {
		delete(s.chats, chatID)
	}
}

// HandleConnection is the websocket entry point. The connection is bound
// to the authenticated user's personal channel for its whole lifetime;
// subscribe/unsubscribe only change the chat filter.
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	tokenUser := conn.Locals(middlewares.TokenUserID)
	userID, ok := tokenUser.(string)
	if !ok || userID == "" {
		conn.Close()
		return
	}
	tokenRole, _ := conn.Locals(middlewares.TokenRole).(string)
	actor := domain.Actor{ID: userID, Role: tokenRole}
	logger.Log.Info("websocket open", zap.String("userID", userID))

	state := &connState{chats: map[string]bool{}}
	ticker := time.NewTicker(10 * time.Minute)
	ctxClose, cancel := context.WithCancel(context.Background())

	defer func() {
		ticker.Stop()
		logger.Log.Info("websocket close", zap.String("userID", userID))
		conn.Close()
		cancel()
	}()

	// client close is swallowed by fiber's read loop, surface it here
	conn.SetCloseHandler(func(code int, text string) error {
		logger.Log.Infof("WebSocket closed:", conn.RemoteAddr())
		return nil
	})

	conn.SetPongHandler(func(appData string) error {
		return nil
	})

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(appData),
			time.Now().Add(time.Second),
		)
	})

	// the personal channel carries every event this user may see; chat
	// events are filtered against the connection's subscribed set, while
	// notification events always pass
	h.pubsub.Subscribe(ctxClose, repository.UserChannel(userID), func(evt domain.Event) {
		if evt.ChatID != "" && !state.subscribed(evt.ChatID) {
			return
		}
		h.writeJSON(conn, state, map[string]interface{}{
			"type":    evt.Type,
			"chat_id": evt.ChatID,
			"payload": evt.Payload,
		})
	})

	go func() {
		for {
			select {
			case <-ticker.C:
				state.writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, []byte("ping"))
				state.writeMu.Unlock()
				if err != nil {
					logger.Log.Errorf("Ping error:", err)
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Infof("Connection closed:", err)
			} else {
				logger.Log.Errorf("websocket read error:", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.textMessageAction(ctx, conn, state, actor, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, conn *websocket.Conn, state *connState, actor domain.Actor, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		logger.Log.Errorf("json unmarshal error:", err)
		return
	}

	resp := domain.WSResponse{Action: req.Action, Success: false}
	switch req.Action {
	case domain.ActionSubscribe:
		// non-members are refused without a response so chat existence
		// never leaks
		if _, err := h.chats.FindMembership(ctx, req.ChatID, actor.ID); err != nil {
			chat, chatErr := h.chats.FindByID(ctx, req.ChatID)
			if chatErr != nil || !chat.IsPublic() {
				logger.Log.Warn("subscribe refused", zap.String("userID", actor.ID), zap.String("chatID", req.ChatID))
				return
			}
		}
		state.set(req.ChatID, true)
		resp.Success = true

	case domain.ActionUnsubscribe:
		state.set(req.ChatID, false)
		resp.Success = true

	case domain.ActionTyping:
		if err := h.messageUC.Typing(ctx, actor, req.ChatID, req.IsTyping); err != nil {
			if errors.Is(err, errprocess.ErrAccessDenied) {
				return
			}
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}
		// typing has no per-signal ack
		return

	case domain.ActionMarkRead:
		if err := h.chatUC.MarkRead(ctx, actor, req.ChatID); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Success = true
		}

	default:
		resp.Error = "unknown action"
	}

	if resp.Error != "" {
		logger.Log.Error("websocket err ", zap.String("UserID", actor.ID), zap.String("Action", string(req.Action)), zap.String("err", resp.Error))
	}
	h.sendResponse(conn, state, resp)
}

func (h *ChatWebsocketHandler) sendResponse(conn *websocket.Conn, state *connState, resp domain.WSResponse) {
	h.writeJSON(conn, state, resp)
}

func (h *ChatWebsocketHandler) writeJSON(conn *websocket.Conn, state *connState, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Log.Errorf("marshal response error:", err)
		return
	}
	state.writeMu.Lock()
	defer state.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Errorf("write message error:", err)
	}
}
