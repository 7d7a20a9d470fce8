package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"orderline/internal/config"
	"orderline/internal/domain"
	"orderline/internal/repo"
)

const (
	defaultNotifyInterval = 2 * time.Second
	defaultNotifyTimeout  = 5 * time.Second
	defaultNotifyBatch    = 100
)

// notifier polls the event log and posts new events to each configured
// endpoint. Delivery is at-least-once per endpoint; a failed post retries
// the same event on the next tick.
type notifier struct {
	repo      repo.Repo
	endpoints []config.NotifierConfig
	client    *http.Client
	logger    *log.Logger
	mu        sync.Mutex
	cursors   map[int]int64
}

func startNotifier(cfg Config) {
	if cfg.App == nil || len(cfg.App.Notifiers) == 0 {
		return
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	n := &notifier{
		repo:      cfg.Repo,
		endpoints: cfg.App.Notifiers,
		client:    &http.Client{Timeout: defaultNotifyTimeout},
		logger:    logger,
		cursors:   make(map[int]int64),
	}
	go n.run()
}

func (n *notifier) run() {
	ticker := time.NewTicker(defaultNotifyInterval)
	defer ticker.Stop()
	for {
		n.dispatchAll()
		<-ticker.C
	}
}

func (n *notifier) dispatchAll() {
	for i, ep := range n.endpoints {
		if ep.Enabled != nil && !*ep.Enabled {
			continue
		}
		if strings.TrimSpace(ep.URL) == "" {
			continue
		}
		n.dispatchEndpoint(i, ep)
	}
}

func (n *notifier) dispatchEndpoint(idx int, ep config.NotifierConfig) {
	ctx := context.Background()
	cursor := n.cursorFor(idx)
	events, err := n.repo.EventsAfter(ctx, defaultNotifyBatch, cursor)
	if err != nil {
		n.logger.Error("notifier: fetch events failed", "error", err)
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(ep.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			n.setCursor(idx, evt.ID)
			continue
		}
		if err := n.postEvent(ctx, ep, evt); err != nil {
			n.logger.Error("notifier: deliver failed", "url", ep.URL, "event_id", evt.ID, "error", err)
			return
		}
		n.setCursor(idx, evt.ID)
	}
}

// cursorFor starts each endpoint at the current log head so a fresh server
// does not replay history.
func (n *notifier) cursorFor(idx int) int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.cursors[idx]; ok {
		return cur
	}
	cur, err := n.repo.LatestEventID(context.Background())
	if err != nil {
		n.logger.Error("notifier: init cursor failed", "error", err)
		cur = 0
	}
	n.cursors[idx] = cur
	return cur
}

func (n *notifier) setCursor(idx int, value int64) {
	n.mu.Lock()
	n.cursors[idx] = value
	n.mu.Unlock()
}

type notifyEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	OrderID    string          `json:"order_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (n *notifier) postEvent(ctx context.Context, ep config.NotifierConfig, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := notifyEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		OrderID:    evt.OrderID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultNotifyTimeout
	if ep.TimeoutSeconds > 0 {
		timeout = time.Duration(ep.TimeoutSeconds) * time.Second
	}
	client := n.client
	if timeout != n.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Orderline-Event", evt.Type)
	req.Header.Set("X-Orderline-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(ep.Secret) != "" {
		req.Header.Set("X-Orderline-Secret", ep.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
