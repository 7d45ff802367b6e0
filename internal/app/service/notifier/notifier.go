package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/clock"
	cfgpkg "github.com/fatflowers/biller/pkg/config"
	"github.com/fatflowers/biller/pkg/tool"
	"github.com/fatflowers/biller/pkg/types"
)

// Event is the envelope delivered to webhook endpoints.
type Event struct {
	ID      string                 `json:"id"`
	Created int64                  `json:"created"`
	Type    types.WebhookEventType `json:"type"`
	Data    any                    `json:"data"`
}

// Service delivers lifecycle events to registered webhooks. Delivery is
// best-effort: failures are counted on the webhook record and logged, and
// never reach the billing transition that produced the event.
type Service struct {
	webhooks *store.WebhookStore
	client   *http.Client
	clock    clock.Clock
	log      *zap.SugaredLogger

	// wg lets tests wait for in-flight dispatches.
	wg sync.WaitGroup
}

func NewService(webhooks *store.WebhookStore, clk clock.Clock, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{
		webhooks: webhooks,
		client:   &http.Client{Timeout: cfg.Webhook.DeliveryTimeout},
		clock:    clk,
		log:      log,
	}
}

// Notify dispatches event to every matching webhook of the user. It returns
// immediately; delivery happens in the background with its own context.
func (s *Service) Notify(ctx context.Context, userID string, event types.WebhookEventType, payload any) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(context.WithoutCancel(ctx), userID, event, payload)
	}()
}

// Wait blocks until all in-flight dispatches finish.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) dispatch(ctx context.Context, userID string, event types.WebhookEventType, payload any) {
	hooks, err := s.webhooks.ListActiveForEvent(ctx, userID, event)
	if err != nil {
		s.log.Errorw("failed to load webhooks", "user_id", userID, "event", event, "err", err)
		return
	}
	if len(hooks) == 0 {
		s.log.Debugw("no webhooks registered", "user_id", userID, "event", event)
		return
	}

	now := s.clock.Now()
	evt := &Event{
		ID:      "evt_" + tool.GenerateUUIDV7(),
		Created: now.Unix(),
		Type:    event,
		Data:    payload,
	}

	var wg sync.WaitGroup
	succeeded := 0
	var mu sync.Mutex
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook *models.Webhook) {
			defer wg.Done()
			if err := s.send(ctx, hook, evt); err != nil {
				s.log.Errorw("webhook delivery failed", "webhook_id", hook.ID, "url", hook.URL, "event", event, "err", err)
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(hook)
	}
	wg.Wait()

	s.log.Infow("webhook event dispatched", "event", event, "webhooks", len(hooks), "succeeded", succeeded)
}

func (s *Service) send(ctx context.Context, hook *models.Webhook, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(body, hook.Secret))
	req.Header.Set("X-Webhook-Id", evt.ID)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(evt.Created, 10))

	resp, err := s.client.Do(req)
	if err != nil {
		if recErr := s.webhooks.RecordDeliveryResult(ctx, hook.ID, "", err.Error(), false); recErr != nil {
			s.log.Warnw("failed to record webhook delivery result", "webhook_id", hook.ID, "err", recErr)
		}
		return err
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := "success"
	if !success {
		result = "error"
	}
	if recErr := s.webhooks.RecordDeliveryResult(ctx, hook.ID, strconv.Itoa(resp.StatusCode), result, success); recErr != nil {
		s.log.Warnw("failed to record webhook delivery result", "webhook_id", hook.ID, "err", recErr)
	}
	if !success {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret; receivers verify
// it from the X-Webhook-Signature header.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
