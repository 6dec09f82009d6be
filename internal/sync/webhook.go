package sync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

const maxPayload = 10 << 20

// Trigger is what a verified push event fires
type Trigger interface {
	Trigger()
}

// WebhookHandler accepts GitHub push events for the config repository
// and triggers a sync when a push changes one of its JSON documents
type WebhookHandler struct {
	secret  []byte
	trigger Trigger
	branch  string
	logger  *slog.Logger
}

// PushEvent is the subset of a GitHub push payload the dashboard reads
type PushEvent struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Forced     bool   `json:"forced"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Pusher struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Commits []PushCommit `json:"commits"`
}

// PushCommit lists the paths one pushed commit touched
type PushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// ConfigChanges returns the top-level JSON documents the push touched.
// A forced push or one without commit details may have changed anything,
// so it reports ok=false to request an unconditional sync.
func (e *PushEvent) ConfigChanges() (files []string, ok bool) {
	if e.Forced || len(e.Commits) == 0 {
		return nil, false
	}

	seen := make(map[string]bool)
	for _, c := range e.Commits {
		for _, group := range [][]string{c.Added, c.Removed, c.Modified} {
			for _, p := range group {
				if strings.Contains(p, "/") || path.Ext(p) != ".json" || seen[p] {
					continue
				}
				seen[p] = true
				files = append(files, p)
			}
		}
	}
	return files, true
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(secret string, trigger Trigger, branch string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		secret:  []byte(secret),
		trigger: trigger,
		branch:  branch,
		logger:  logger,
	}
}

// ServeHTTP handles incoming webhook requests
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.validSignature(r.Header.Get("X-Hub-Signature-256"), body) {
		h.logger.Warn("rejected webhook with bad signature", "remote_addr", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	h.logger.Info("webhook received",
		"event", event,
		"delivery_id", r.Header.Get("X-GitHub-Delivery"),
	)

	switch event {
	case "ping":
		writeStatus(w, http.StatusOK, "pong", "")
	case "push":
		h.handlePush(w, body)
	default:
		writeStatus(w, http.StatusOK, "ignored", "not a push event")
	}
}

func (h *WebhookHandler) handlePush(w http.ResponseWriter, body []byte) {
	var push PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		h.logger.Error("failed to parse push event", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if want := "refs/heads/" + h.branch; push.Ref != want {
		h.logger.Debug("push to another branch", "ref", push.Ref, "config_branch", want)
		writeStatus(w, http.StatusOK, "ignored", "different branch")
		return
	}

	files, known := push.ConfigChanges()
	if known && len(files) == 0 {
		h.logger.Debug("push does not touch config documents", "after", shortSHA(push.After))
		writeStatus(w, http.StatusOK, "ignored", "no config documents changed")
		return
	}

	h.logger.Info("config push received",
		"repository", push.Repository.FullName,
		"before", shortSHA(push.Before),
		"after", shortSHA(push.After),
		"files", files,
		"pusher", push.Pusher.Name,
	)

	h.trigger.Trigger()
	writeStatus(w, http.StatusAccepted, "accepted", "")
}

// validSignature checks a "sha256=<hex>" HMAC of the body. An empty
// secret never validates.
func (h *WebhookHandler) validSignature(signature string, body []byte) bool {
	if len(h.secret) == 0 {
		return false
	}
	algo, sum, ok := strings.Cut(signature, "=")
	if !ok || algo != "sha256" {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(sum), []byte(expected))
}

type webhookStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func writeStatus(w http.ResponseWriter, code int, status, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(webhookStatus{Status: status, Reason: reason})
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
