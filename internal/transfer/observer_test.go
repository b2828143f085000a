package transfer

import (
	"sync"
)

// recorder collects observer notifications for assertions.
type recorder struct {
	mu        sync.Mutex
	added     []Item
	progress  map[string][]int
	completed map[string]*Handle
	logs      []string
}

func newRecorder() *recorder {
	return &recorder{
		progress:  make(map[string][]int),
		completed: make(map[string]*Handle),
	}
}

func (r *recorder) OnTransferAdded(item Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, item)
}

func (r *recorder) OnProgress(id string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress[id] = append(r.progress[id], percent)
}

func (r *recorder) OnCompleted(id string, handle *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[id] = handle
}

func (r *recorder) OnLog(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, message)
}

// loopback delivers every frame straight into a receiver.
type loopback struct {
	receiver *Receiver
	frames   int
	failAt   int
}

func (l *loopback) Send(data []byte) error {
	l.frames++
	if l.failAt > 0 && l.frames == l.failAt {
		return errBroken
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	l.receiver.Handle(messageOf(buf, false))
	return nil
}

func (l *loopback) SendText(text string) error {
	l.frames++
	if l.failAt > 0 && l.frames == l.failAt {
		return errBroken
	}
	l.receiver.Handle(messageOf([]byte(text), true))
	return nil
}
