package jsonrpc

import (
	"container/list"
	"strconv"
)

// messageQueue is an insertion-ordered map of inbound messages. Requests
// are keyed by id so a queued request can be found and removed when its
// cancellation arrives before dispatch.
type messageQueue struct {
	order *list.List
	index map[string]*list.Element
}

type queueEntry struct {
	key string
	msg *Message
}

func newMessageQueue() *messageQueue {
	return &messageQueue{order: list.New(), index: make(map[string]*list.Element)}
}

// Set appends msg under key, replacing an existing entry in place.
func (q *messageQueue) Set(key string, msg *Message) {
	if el, ok := q.index[key]; ok {
		el.Value.(*queueEntry).msg = msg
		return
	}
	q.index[key] = q.order.PushBack(&queueEntry{key: key, msg: msg})
}

func (q *messageQueue) Get(key string) (*Message, bool) {
	el, ok := q.index[key]
	if !ok {
		return nil, false
	}
	return el.Value.(*queueEntry).msg, true
}

func (q *messageQueue) Delete(key string) bool {
	el, ok := q.index[key]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, key)
	return true
}

// Shift removes and returns the oldest message.
func (q *messageQueue) Shift() (*Message, bool) {
	el := q.order.Front()
	if el == nil {
		return nil, false
	}
	entry := q.order.Remove(el).(*queueEntry)
	delete(q.index, entry.key)
	return entry.msg, true
}

func (q *messageQueue) Len() int {
	return q.order.Len()
}

func (q *messageQueue) Clear() {
	q.order.Init()
	q.index = make(map[string]*list.Element)
}

func requestQueueKey(id ID) string {
	return "req-" + id.String()
}

func responseQueueKey(id ID) string {
	return "res-" + id.String()
}

func notificationQueueKey(n int) string {
	return "not-" + strconv.Itoa(n)
}

func unknownResponseQueueKey(n int) string {
	return "res-unknown-" + strconv.Itoa(n)
}
