package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

const (
	subscriberBuffer = 16
	writeTimeout     = 10 * time.Second
)

// SignalEvent 一次分析产生的 AI 信号
type SignalEvent struct {
	UserID    *uint               `json:"user_id,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
	Signals   ingestion.AISignals `json:"ai_signals"`
}

type subscriber struct {
	userID *uint
	ch     chan SignalEvent
}

// SignalHub 将分析结果广播给 websocket 订阅者。
// 慢订阅者的缓冲区满时丢弃新事件，不阻塞分析请求。
type SignalHub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *zap.Logger
}

// NewSignalHub 创建 SignalHub
func NewSignalHub(logger *zap.Logger) *SignalHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalHub{subs: make(map[*subscriber]struct{}), logger: logger.With(zap.String("component", "signal_hub"))}
}

// Publish 广播事件。订阅了特定用户的连接只收到该用户的事件
func (h *SignalHub) Publish(ev SignalEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.userID != nil && (ev.UserID == nil || *ev.UserID != *s.userID) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.logger.Warn("signal subscriber lagging, event dropped")
		}
	}
}

// Subscribe 注册订阅者，返回事件通道与取消函数
func (h *SignalHub) Subscribe(userID *uint) (<-chan SignalEvent, func()) {
	s := &subscriber{userID: userID, ch: make(chan SignalEvent, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, s)
			h.mu.Unlock()
		})
	}
}

// Subscribers 当前订阅者数量
func (h *SignalHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// HandleStream 处理 /api/v1/signals/stream，可选 ?user_id= 过滤。
// 认证用户只订阅自己的事件，忽略查询参数
func (h *SignalHub) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUint(r, "user_id")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if uid, ok := types.UserID(r.Context()); ok {
		userID = &uid
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.Subscribe(userID)
	defer cancel()

	// 客户端不发送数据；CloseRead 在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := h.write(ctx, conn, ev); err != nil {
				h.logger.Debug("signal stream closed", zap.Error(err))
				return
			}
		}
	}
}

func (h *SignalHub) write(ctx context.Context, conn *websocket.Conn, ev SignalEvent) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
