package webrecorder

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

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// --- Constants for structured event annotations ---

const (
	// PhaseKey carries the dashboard phase the event reports (e.g. "Active", "Blocked").
	PhaseKey = "dashboard.infini.cloud/phase"
	// StatusKey carries the outcome of the event (e.g. "success", "failure").
	StatusKey = "dashboard.infini.cloud/status"
	// StepKey carries the reconciliation task that produced the event.
	StepKey = "dashboard.infini.cloud/step"
)

// --- Constants for event status values ---

const (
	StatusSuccess    = "success"
	StatusFailure    = "failure"
	StatusInProgress = "in_progress"
)

// --- Constants for Webhook sender configuration ---
const (
	// WebhookRetryMaxAttempts is the maximum number of attempts to deliver one event.
	WebhookRetryMaxAttempts = 3
	// WebhookRetryInitialInterval is the wait before the first retry. It doubles on every retry.
	WebhookRetryInitialInterval = 10 * time.Second
	// webhookRequestTimeout bounds a single delivery attempt.
	webhookRequestTimeout = 10 * time.Second
)

// WebhookEvent is the structured payload posted to the webhook endpoint.
type WebhookEvent struct {
	// Dashboard is the namespace/name of the object the event is about.
	Dashboard string `json:"dashboard"`
	// ClusterID identifies the cluster the event originated from.
	ClusterID string `json:"cluster_id"`
	// Phase is the dashboard phase at the time of the event.
	Phase string `json:"phase"`
	// Level is the Kubernetes event type ("Normal", "Warning").
	Level string `json:"level"`
	Message   string `json:"message"`
	// Timestamp is RFC3339 in UTC.
	Timestamp string            `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
	Status    string            `json:"status"`
	Step      string            `json:"step"`
	// LinkCounts is the number of published links per location.
	LinkCounts map[string]int `json:"link_counts,omitempty"`
}

// WebhookEventRecorder decorates a record.EventRecorder. Every event reaches the
// wrapped recorder; annotated events are additionally posted to a webhook.
// Consecutive identical annotated events for the same object are posted once.
type WebhookEventRecorder struct {
	recorder   record.EventRecorder
	httpClient *http.Client
	webhookURL string
	clusterID  string
	backoff    wait.Backoff
	logger     logr.Logger

	mu       sync.Mutex
	lastSent map[string]string
	inflight sync.WaitGroup
}

// NewWebhookEventRecorder wraps recorder, which may be nil. An empty webhookURL
// disables posting.
func NewWebhookEventRecorder(recorder record.EventRecorder, webhookURL, clusterID string) *WebhookEventRecorder {
	return &WebhookEventRecorder{
		recorder:   recorder,
		webhookURL: webhookURL,
		clusterID:  clusterID,
		logger:     log.Log.WithName("webrecorder"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		backoff: wait.Backoff{
			Duration: WebhookRetryInitialInterval,
			Factor:   2,
			Steps:    WebhookRetryMaxAttempts,
		},
		lastSent: map[string]string{},
	}
}

// Event passes a simple event through to the underlying recorder.
func (r *WebhookEventRecorder) Event(object runtime.Object, eventtype, reason, message string) {
	if r == nil {
		return
	}
	if r.recorder != nil {
		r.recorder.Event(object, eventtype, reason, message)
	}
}

// Eventf passes a formatted event through to the underlying recorder.
func (r *WebhookEventRecorder) Eventf(object runtime.Object, eventtype, reason, messageFmt string, args ...interface{}) {
	if r == nil {
		return
	}
	if r.recorder != nil {
		r.recorder.Eventf(object, eventtype, reason, messageFmt, args...)
	}
}

// AnnotatedEventf records the event and posts it to the webhook.
func (r *WebhookEventRecorder) AnnotatedEventf(object runtime.Object, annotations map[string]string, eventtype, reason, messageFmt string, args ...interface{}) {
	r.AnnotatedEventfWithLinks(object, annotations, nil, eventtype, reason, messageFmt, args...)
}

// AnnotatedEventfWithLinks is AnnotatedEventf with the published link counts attached.
func (r *WebhookEventRecorder) AnnotatedEventfWithLinks(object runtime.Object, annotations map[string]string, linkCounts map[string]int, eventtype, reason, messageFmt string, args ...interface{}) {
	if r == nil {
		return
	}

	if r.recorder != nil {
		r.recorder.AnnotatedEventf(object, annotations, eventtype, reason, messageFmt, args...)
	}

	if r.webhookURL == "" {
		return
	}

	key := objectKey(object)
	fingerprint := strings.Join([]string{annotations[PhaseKey], annotations[StatusKey], annotations[StepKey], reason}, "|")
	if !r.markSent(key, fingerprint) {
		r.logger.V(1).Info("Skipping duplicate webhook event", "object", key, "reason", reason)
		return
	}

	eventData := &WebhookEvent{
		Dashboard:  key,
		ClusterID:  r.clusterID,
		Phase:      annotations[PhaseKey],
		Level:      eventtype,
		Message:    fmt.Sprintf(messageFmt, args...),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    map[string]string{"reason": reason},
		Status:     annotations[StatusKey],
		Step:       annotations[StepKey],
		LinkCounts: linkCounts,
	}

	// Delivery is asynchronous so a slow endpoint never stalls reconciliation.
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.sendEvent(context.Background(), eventData)
	}()
}

// Wait blocks until every event handed to the webhook so far was delivered or dropped.
func (r *WebhookEventRecorder) Wait() {
	r.inflight.Wait()
}

// Forget drops what was posted for object, so the next event about an object
// with the same name is posted again. Call it once the object is gone.
func (r *WebhookEventRecorder) Forget(object runtime.Object) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastSent, objectKey(object))
}

func (r *WebhookEventRecorder) markSent(key, fingerprint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSent[key] == fingerprint {
		return false
	}
	r.lastSent[key] = fingerprint
	return true
}

// sendEvent posts data, retrying with exponential backoff on server errors.
func (r *WebhookEventRecorder) sendEvent(ctx context.Context, data *WebhookEvent) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		r.logger.Error(err, "Failed to marshal webhook event data, the event will not be sent")
		return
	}

	attempt := 0
	err = wait.ExponentialBackoffWithContext(ctx, r.backoff, func(ctx context.Context) (bool, error) {
		attempt++
		done, err := r.post(ctx, jsonData)
		if err != nil {
			return false, err
		}
		if !done {
			r.logger.Info("Webhook send failed. Retrying...",
				"url", r.webhookURL,
				"attempt", fmt.Sprintf("%d/%d", attempt, r.backoff.Steps))
		}
		return done, nil
	})
	if err != nil {
		r.logger.Error(err, "Failed to send webhook event, dropping the event",
			"url", r.webhookURL,
			"attempts", attempt)
	}
}

// post makes one delivery attempt. It returns an error only when retrying is pointless.
func (r *WebhookEventRecorder) post(ctx context.Context, body []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, webhookRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if isNetworkError(err) {
			return false, err
		}
		r.logger.Error(err, "Failed to send webhook event", "url", r.webhookURL)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		r.logger.V(1).Info("Successfully sent event to webhook", "url", r.webhookURL, "status", resp.Status)
		return true, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	r.logger.Error(nil, "Webhook endpoint returned error status",
		"url", r.webhookURL,
		"status_code", resp.StatusCode,
		"response_body", string(respBody))
	return false, nil
}

func objectKey(object runtime.Object) string {
	if accessor, err := meta.Accessor(object); err == nil {
		if accessor.GetNamespace() == "" {
			return accessor.GetName()
		}
		return accessor.GetNamespace() + "/" + accessor.GetName()
	}
	return object.GetObjectKind().GroupVersionKind().Kind
}

// isNetworkError checks if the error is a network-related error that should not be retried
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable")
}
