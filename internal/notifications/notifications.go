package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/aquactl/internal/output"
)

const DefaultURL = "https://ntfy.sh"

// Notifier pushes ntfy notifications. A nil *Notifier sends nothing.
type Notifier struct {
	client  *http.Client
	baseURL string
	topic   string

	mu      sync.Mutex
	failing map[string]bool
	pending sync.WaitGroup
}

// Init returns a notifier for topic, or nil when no topic is configured.
func Init(baseURL, topic string) *Notifier {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultURL
	}

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")
	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
		failing: make(map[string]bool),
	}
}

// Send sends a notification to ntfy
func (n *Notifier) Send(title, message string) error {
	if n == nil {
		return fmt.Errorf("notifications not initialized")
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest("POST", n.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// OutputWritten notifies once when an output starts failing and once when
// it recovers. Sending happens in the background.
func (n *Notifier) OutputWritten(e output.Event) {
	if n == nil {
		return
	}

	n.mu.Lock()
	wasFailing := n.failing[e.Output]
	failing := e.Err != nil
	n.failing[e.Output] = failing
	n.mu.Unlock()

	var title, message string
	switch {
	case failing && !wasFailing:
		title = fmt.Sprintf("Output %s failing", e.Output)
		message = fmt.Sprintf("Writing %s to %s failed: %v", e.Value.Serialize(), e.Output, e.Err)
	case !failing && wasFailing:
		title = fmt.Sprintf("Output %s recovered", e.Output)
		message = fmt.Sprintf("%s accepted %s again", e.Output, e.Value.Serialize())
	default:
		return
	}

	n.pending.Add(1)
	go func() {
		defer n.pending.Done()
		if err := n.Send(title, message); err != nil {
			log.Warn().Err(err).Str("output", e.Output).Msg("Could not send notification")
		}
	}()
}

// Wait blocks until notifications in flight are sent.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.pending.Wait()
}
