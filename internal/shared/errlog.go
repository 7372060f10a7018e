package shared

import (
	"sync"
	"time"
)

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	At     time.Time `json:"at"`
	Source string    `json:"source"`
	Err    error     `json:"-"`
	Text   string    `json:"message"`
}

// ErrorLog is an append-only list of failures that can be observed while it grows.
//
// Subscribers get every entry appended after they subscribe. A subscriber that falls
// more than its buffer behind misses entries; [ErrorLog.Entries] always has the full list.
type ErrorLog struct {
	mu      sync.RWMutex
	entries []ErrorEntry
	subs    map[int]chan ErrorEntry
	nextSub int
	now     func() time.Time
}

func NewErrorLog() *ErrorLog {
	return &ErrorLog{subs: make(map[int]chan ErrorEntry), now: time.Now}
}

// Append records err under source. A nil err is ignored.
func (l *ErrorLog) Append(source string, err error) {
	if err == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := ErrorEntry{At: l.now(), Source: source, Err: err, Text: err.Error()}
	l.entries = append(l.entries, e)
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Entries returns a copy of every recorded entry, oldest first.
func (l *ErrorLog) Entries() []ErrorEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ErrorEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *ErrorLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe returns a channel of new entries and a cancel func that closes it.
func (l *ErrorLog) Subscribe() (<-chan ErrorEntry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan ErrorEntry, 16)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}
