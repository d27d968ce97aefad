package notifications

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	EventConnected       = "connected"
	EventReceiptsChanged = "receipts_changed"
	EventReceiptScanned  = "receipt_scanned"

	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"

	subscriberBuffer = 10
)

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// ReceiptChange сообщает открытому дашборду, что агрегаты устарели.
type ReceiptChange struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
	Action    string    `json:"action"`
}

// ReceiptScan сообщает о завершенном распознавании. ReceiptID пуст для
// изображения, загруженного без чека.
type ReceiptScan struct {
	ReceiptID  *uuid.UUID `json:"receipt_id,omitempty"`
	VendorName string     `json:"vendor_name"`
}

type subscription struct {
	events chan Event
	once   sync.Once
}

// Hub раздает события открытым SSE-потокам пользователя. Медленный
// подписчик теряет события, а не задерживает публикацию.
type Hub struct {
	mu      sync.RWMutex
	streams map[uuid.UUID]map[*subscription]struct{}
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{streams: make(map[uuid.UUID]map[*subscription]struct{})}
}

// Subscribe возвращает канал событий пользователя и функцию отписки.
// Отписка закрывает канал; повторный вызов ничего не делает.
func (h *Hub) Subscribe(userID uuid.UUID) (<-chan Event, func()) {
	sub := &subscription{events: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.streams[userID] == nil {
		h.streams[userID] = make(map[*subscription]struct{})
	}
	h.streams[userID][sub] = struct{}{}
	h.mu.Unlock()

	return sub.events, func() { h.unsubscribe(userID, sub) }
}

func (h *Hub) unsubscribe(userID uuid.UUID, sub *subscription) {
	sub.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		delete(h.streams[userID], sub)
		if len(h.streams[userID]) == 0 {
			delete(h.streams, userID)
		}
		close(sub.events)
	})
}

func (h *Hub) Publish(userID uuid.UUID, event Event) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.streams[userID] {
		select {
		case sub.events <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) PublishReceiptChange(userID, receiptID uuid.UUID, action string) {
	h.Publish(userID, Event{
		Type: EventReceiptsChanged,
		Data: ReceiptChange{ReceiptID: receiptID, Action: action},
	})
}

func (h *Hub) PublishReceiptScanned(userID uuid.UUID, receiptID *uuid.UUID, vendorName string) {
	h.Publish(userID, Event{
		Type: EventReceiptScanned,
		Data: ReceiptScan{ReceiptID: receiptID, VendorName: vendorName},
	})
}

// Subscribers возвращает число открытых потоков пользователя.
func (h *Hub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[userID])
}

// Dropped возвращает число событий, не доставленных из-за полного буфера.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
