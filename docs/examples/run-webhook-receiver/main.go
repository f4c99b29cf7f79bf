// Run webhook receiver example.
//
// A minimal receiver that verifies report run notifications.
//
// Usage:
//
//	export RUN_WEBHOOK_SECRET="your_secret_here"
//	go run main.go
//
// Then point RUN_WEBHOOK_URL of the report service at http://your-server:9000/webhook
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const replayWindow = 5 * time.Minute

// RunEvent is the notification body.
type RunEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Run        struct {
		ID           string `json:"id"`
		ClientID     string `json:"client_id"`
		ReportMonth  string `json:"report_month"`
		Trigger      string `json:"trigger"`
		Status       string `json:"status"`
		WarningCount int    `json:"warning_count"`
		Error        string `json:"error"`
	} `json:"run"`
}

func main() {
	secret := os.Getenv("RUN_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("RUN_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting run webhook receiver on :9000")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	var mu sync.Mutex
	seen := make(map[string]bool)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		ts, err := strconv.ParseInt(r.Header.Get("X-Sitereport-Timestamp"), 10, 64)
		if err != nil {
			http.Error(w, "Missing timestamp", http.StatusUnauthorized)
			return
		}
		if !verifySignature(secret, r.Header.Get("X-Sitereport-Signature"), ts, body, time.Now()) {
			log.Println("Rejected notification: bad signature or stale timestamp")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		// Retries reuse the delivery id.
		delivery := r.Header.Get("X-Sitereport-Delivery-Id")
		mu.Lock()
		dup := seen[delivery]
		seen[delivery] = true
		mu.Unlock()
		if dup {
			w.WriteHeader(http.StatusOK)
			return
		}

		var event RunEvent
		if err := json.Unmarshal(body, &event); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("%s: %s %s (%s, %d warnings)", event.EventType, event.Run.ClientID, event.Run.ReportMonth, event.Run.Trigger, event.Run.WarningCount)
		if event.Run.Error != "" {
			log.Printf("  error: %s", event.Run.Error)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature checks the hex HMAC-SHA256 of "{timestamp}.{body}".
func verifySignature(secret, signature string, ts int64, body []byte, now time.Time) bool {
	if signature == "" {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age > replayWindow || age < -replayWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
