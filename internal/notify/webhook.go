// Package notify delivers watcher messages to a Discord-style webhook.
// Delivery is strictly best-effort: failures are logged and swallowed so
// the event pipeline never stalls on the network.
package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

// ChunkSize is the largest message body sent in one webhook call.
// Discord rejects content above 2000 characters; 1800 leaves headroom.
const ChunkSize = 1800

// Webhook posts messages to a single webhook URL. With an empty URL it
// degrades to printing messages to the local log, which keeps the
// watcher usable without Discord.
type Webhook struct {
	url    string
	client *http.Client
}

// New creates a webhook sink for url (may be empty).
func New(url string) *Webhook {
	return &Webhook{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: 6 * time.Second},
	}
}

// Announce delivers one short message.
func (w *Webhook) Announce(text string) {
	if text == "" {
		return
	}
	log.Println(text)
	w.post(text)
}

// PostLong delivers multi-line content, split into chunks of at most
// ChunkSize bytes without breaking inside a line.
func (w *Webhook) PostLong(text string) {
	if text == "" {
		return
	}
	if w.url == "" {
		log.Println(text)
		return
	}
	for _, chunk := range SplitChunks(text, ChunkSize) {
		w.post(chunk)
	}
}

// SplitChunks splits text on line boundaries into pieces of at most
// limit bytes. A single line longer than the limit is sent on its own
// rather than truncated.
func SplitChunks(text string, limit int) []string {
	var chunks []string
	var buf strings.Builder

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(line) > limit {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		buf.WriteString(line)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}

// post sends one webhook payload. Errors are logged, never returned.
func (w *Webhook) post(text string) {
	if w.url == "" || text == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		log.Printf("webhook marshal: %v", err)
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Printf("webhook error: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("webhook error: %s", resp.Status)
	}
}
