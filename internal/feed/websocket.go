package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Stats 数据源计数
type Stats struct {
	Received int64
	Dropped  int64
}

// WebSocketSource 通过 WebSocket 接收数据帧
// 单一读协程顺序处理，帧之间不会交错；不重连
type WebSocketSource struct {
	url        string
	dialer     *websocket.Dialer
	dispatcher Dispatcher
	logger     *zap.Logger

	received atomic.Int64
	dropped  atomic.Int64
}

// NewWebSocketSource 创建 WebSocket 数据源
func NewWebSocketSource(url string, dispatcher Dispatcher, logger *zap.Logger) *WebSocketSource {
	return &WebSocketSource{
		url:        url,
		dialer:     websocket.DefaultDialer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run 连接并读取帧，直到 ctx 取消（返回 nil）或连接故障（返回错误）
func (s *WebSocketSource) Run(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed %s: %w", s.url, err)
	}

	s.logger.Info("Feed connected", zap.String("url", s.url))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("Feed closed by peer", zap.String("url", s.url), zap.Error(err))
				return nil
			}
			s.logger.Error("Feed connection fault", zap.String("url", s.url), zap.Error(err))
			return fmt.Errorf("feed connection fault: %w", err)
		}

		s.received.Add(1)
		if typ != websocket.TextMessage {
			s.dropped.Add(1)
			s.logger.Debug("Ignoring non-text frame", zap.Int("message_type", typ))
			continue
		}

		if err := Dispatch(ctx, s.dispatcher, msg); err != nil {
			s.dropped.Add(1)
			level := s.logger.Warn
			if !errors.Is(err, ErrMalformedFrame) {
				level = s.logger.Error
			}
			level("Dropping feed frame",
				zap.Int("payload_size", len(msg)),
				zap.Error(err),
			)
		}
	}
}

// Stats 返回已接收和已丢弃的帧数
func (s *WebSocketSource) Stats() Stats {
	return Stats{Received: s.received.Load(), Dropped: s.dropped.Load()}
}
