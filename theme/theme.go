package theme

import (
	"sync"
	"time"
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// Parse falls back to Light for anything it does not recognise.
func Parse(s string) Theme {
	if Theme(s) == Dark {
		return Dark
	}
	return Light
}

// Skin is the presentation tied to a theme.
type Skin struct {
	Name       string `json:"name"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
}

var (
	xbox = Skin{
		Name:       "xbox",
		Accent:     "green",
		Background: "https://res.cloudinary.com/dud5m1ltq/image/upload/v1750461496/latest_howx98.png",
	}
	ps2 = Skin{
		Name:       "ps2",
		Accent:     "blue",
		Background: "https://res.cloudinary.com/dud5m1ltq/image/upload/v1750302558/3fd4849288fe473940092cc5d5a9bb0b_tuhurb.gif",
	}
)

func (t Theme) Skin() Skin {
	if t == Dark {
		return ps2
	}
	return xbox
}

/*
Hub keeps the current theme per key (a browser session) and fans every
change out to that key's subscribers. Subscribers always see the latest
value; a slow reader may miss intermediate ones.
*/
type Hub struct {
	mu      sync.Mutex
	current map[string]setting
	subs    map[string]map[int]chan Theme
	nextID  int
}

type setting struct {
	theme Theme
	at    time.Time
}

func NewHub() *Hub {
	return &Hub{
		current: map[string]setting{},
		subs:    map[string]map[int]chan Theme{},
	}
}

// Get returns the theme for key, or fallback if none was ever set.
func (h *Hub) Get(key string, fallback Theme) Theme {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.current[key]; ok {
		return s.theme
	}
	return fallback
}

func (h *Hub) Set(key string, t Theme) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current[key] = setting{theme: t, at: time.Now()}
	for _, ch := range h.subs[key] {
		select {
		case <-ch:
		default:
		}
		ch <- t
	}
}

// Subscribe returns a channel of theme changes for key and a func that
// ends the subscription and closes the channel.
func (h *Hub) Subscribe(key string) (<-chan Theme, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Theme, 1)
	if h.subs[key] == nil {
		h.subs[key] = map[int]chan Theme{}
	}
	h.subs[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Forget drops the stored theme for key. Subscriptions stay open.
func (h *Hub) Forget(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.current, key)
}

// Expire drops themes set longer than max_age ago for keys nobody is
// subscribed to, and returns how many were dropped.
func (h *Hub) Expire(max_age time.Duration) int {
	cutoff := time.Now().Add(-max_age)

	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for key, s := range h.current {
		if s.at.After(cutoff) || len(h.subs[key]) > 0 {
			continue
		}
		delete(h.current, key)
		removed++
	}
	return removed
}
