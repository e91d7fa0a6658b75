package watch

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

const subscriberBuffer = 64

// broker manages SSE client connections and broadcasts messages.
type broker struct {
	mu      sync.Mutex
	clients map[chan message]struct{}
	latest  map[string]message
}

func newBroker() *broker {
	return &broker{
		clients: make(map[chan message]struct{}),
		latest:  make(map[string]message),
	}
}

func (b *broker) subscribe() chan message {
	ch := make(chan message, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	for _, event := range []string{sseEventSummary, sseEventGraph} {
		if m, ok := b.latest[event]; ok {
			ch <- m
		}
	}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan message) {
	b.mu.Lock()
	delete(b.clients, ch)
	close(ch)
	b.mu.Unlock()
}

// publish never blocks; slow clients miss messages.
func (b *broker) publish(m message) {
	b.mu.Lock()
	if m.replayed() {
		b.latest[m.Event] = m
	}
	for ch := range b.clients {
		select {
		case ch <- m:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *broker) reset() {
	b.mu.Lock()
	b.latest = make(map[string]message)
	b.mu.Unlock()
}

func newServer(b *broker, port int) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: newMux(b),
	}
}

func newMux(b *broker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(routeIndex, handleIndex)
	mux.HandleFunc(routeEvents, handleSSE(b))
	return mux
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != routeIndex {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(indexHTML)); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func handleSSE(b *broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher.Flush()

		ch := b.subscribe()
		defer b.unsubscribe(ch)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				writeEvent(w, m)
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, m message) {
	fmt.Fprintf(w, "event: %s\n", m.Event)
	for _, line := range strings.Split(m.Data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprintf(w, "\n")
}
