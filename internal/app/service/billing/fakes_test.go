package billing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/biller/internal/app/service/payment"
	"github.com/fatflowers/biller/internal/models"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/clock"
	cfgpkg "github.com/fatflowers/biller/pkg/config"
	"github.com/fatflowers/biller/pkg/tool"
	"github.com/fatflowers/biller/pkg/types"
)

// fakeSubStore is an in-memory SubscriptionStore with the same conditional
// update semantics as the real one.
type fakeSubStore struct {
	mu   sync.Mutex
	subs map[string]*models.Subscription
	// forceConflict makes every UpdateIfUnchanged miss, as if a concurrent
	// transition won the race.
	forceConflict bool
}

func newFakeSubStore(subs ...*models.Subscription) *fakeSubStore {
	s := &fakeSubStore{subs: map[string]*models.Subscription{}}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *fakeSubStore) get(id string) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		cp := *sub
		return &cp
	}
	return nil
}

func (s *fakeSubStore) Create(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *fakeSubStore) FindByID(_ context.Context, id string) (*models.Subscription, error) {
	if sub := s.get(id); sub != nil {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeSubStore) FindOneForUser(_ context.Context, id, userID string) (*models.Subscription, error) {
	if sub := s.get(id); sub != nil && sub.UserID == userID {
		return sub, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeSubStore) ListByUser(_ context.Context, userID string) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) FindActiveByUserAndPlan(_ context.Context, userID, planID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.PlanID == planID && !sub.Status.Terminal() {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeSubStore) FindDueForRenewal(_ context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusActive && !sub.CancelAtPeriodEnd && !sub.CurrentPeriodEnd.After(cutoff) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) FindExpiredTrials(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusTrial && sub.TrialEndDate != nil && !sub.TrialEndDate.After(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) FindPeriodEndCancellations(_ context.Context, now time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusActive && sub.CancelAtPeriodEnd && !sub.CurrentPeriodEnd.After(now) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) FindLapsedPastDue(_ context.Context, cutoff time.Time) ([]*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusPastDue && !sub.UpdatedAt.After(cutoff) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeSubStore) UpdateIfUnchanged(_ context.Context, id string, expect store.Revision, patch *store.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceConflict {
		return false, nil
	}
	sub, ok := s.subs[id]
	if !ok {
		return false, nil
	}
	if sub.Status != expect.Status || !sub.CurrentPeriodEnd.Equal(expect.CurrentPeriodEnd) || sub.FailedAttempts != expect.FailedAttempts {
		return false, nil
	}
	if patch.Status != nil {
		sub.Status = *patch.Status
	}
	if patch.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = *patch.CurrentPeriodStart
	}
	if patch.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = *patch.CurrentPeriodEnd
	}
	if patch.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *patch.CancelAtPeriodEnd
	}
	if patch.CanceledAt != nil {
		sub.CanceledAt = patch.CanceledAt
	}
	if patch.LastBillingAttempt != nil {
		sub.LastBillingAttempt = patch.LastBillingAttempt
	}
	if patch.LastTransactionID != nil {
		sub.LastTransactionID = patch.LastTransactionID
	}
	if patch.FailedAttempts != nil {
		sub.FailedAttempts = *patch.FailedAttempts
	}
	if patch.PaymentMethodID != nil {
		sub.PaymentMethodID = *patch.PaymentMethodID
	}
	return true, nil
}

type fakePlanStore struct {
	plans map[string]*models.Plan
}

func (s *fakePlanStore) FindByID(_ context.Context, id string) (*models.Plan, error) {
	if p, ok := s.plans[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeMethodStore struct {
	methods map[string]*models.PaymentMethod
}

func (s *fakeMethodStore) FindOneForUser(_ context.Context, id, userID string) (*models.PaymentMethod, error) {
	if m, ok := s.methods[id]; ok && m.UserID == userID {
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// scriptedCharger consumes one scripted outcome per Charge call and records
// the intents it saw. It writes transactions the way the orchestrator does:
// one per attempt, success or failure.
type chargeOutcome struct {
	succeed bool
	err     error
	panics  bool
}

type scriptedCharger struct {
	mu       sync.Mutex
	script   []chargeOutcome
	intents  []*payment.ChargeIntent
	appended []*models.Transaction
}

func (c *scriptedCharger) Charge(_ context.Context, intent *payment.ChargeIntent) (*models.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out chargeOutcome
	if len(c.script) > 0 {
		out = c.script[0]
		c.script = c.script[1:]
	}
	if out.panics {
		panic("charger blew up")
	}
	c.intents = append(c.intents, intent)
	if out.err != nil {
		return nil, out.err
	}

	txn := &models.Transaction{
		ID:                 tool.GenerateUUIDV7(),
		SubscriptionID:     intent.Subscription.ID,
		UserID:             intent.Subscription.UserID,
		PlanID:             intent.Plan.ID,
		Amount:             intent.Plan.Price,
		Currency:           intent.Plan.Currency,
		BillingPeriodStart: intent.PeriodStart,
		BillingPeriodEnd:   intent.PeriodEnd,
	}
	if out.succeed {
		txn.Status = types.TransactionStatusSucceeded
	} else {
		txn.Status = types.TransactionStatusFailed
		reason := "payment declined"
		txn.FailureReason = &reason
	}
	c.appended = append(c.appended, txn)
	return txn, nil
}

func (c *scriptedCharger) chargeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.intents)
}

type recordedEvent struct {
	userID  string
	event   types.WebhookEventType
	payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *fakeNotifier) Notify(_ context.Context, userID string, event types.WebhookEventType, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{userID: userID, event: event, payload: payload})
}

func (n *fakeNotifier) has(event types.WebhookEventType) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.event == event {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) payloadOf(event types.WebhookEventType) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.event == event {
			return e.payload
		}
	}
	return nil
}

type fakeChangeLogger struct {
	mu      sync.Mutex
	entries []*models.SubscriptionLog
}

func (l *fakeChangeLogger) Log(_ context.Context, entry *models.SubscriptionLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		Billing: cfgpkg.BillingConfig{
			MaxFailedAttempts: 3,
			GracePeriodDays:   14,
			RenewalLookahead:  24 * time.Hour,
			ChargeTimeout:     5 * time.Second,
			BatchConcurrency:  4,
			BatchDeadline:     time.Minute,
		},
	}
}

type harness struct {
	svc      *Service
	subs     *fakeSubStore
	plans    *fakePlanStore
	methods  *fakeMethodStore
	charger  *scriptedCharger
	notifier *fakeNotifier
	clock    *clock.Fixed
}

func newHarness(now time.Time, subs ...*models.Subscription) *harness {
	h := &harness{
		subs:     newFakeSubStore(subs...),
		plans:    &fakePlanStore{plans: map[string]*models.Plan{}},
		methods:  &fakeMethodStore{methods: map[string]*models.PaymentMethod{}},
		charger:  &scriptedCharger{},
		notifier: &fakeNotifier{},
		clock:    clock.NewFixed(now),
	}
	h.svc = NewService(
		testConfig(), zap.NewNop().Sugar(),
		h.subs, h.plans, h.methods, h.charger, h.notifier, &fakeChangeLogger{},
		h.clock,
	)
	return h
}

func (h *harness) addPlan(p *models.Plan) *models.Plan {
	h.plans.plans[p.ID] = p
	return p
}

func (h *harness) addMethod(m *models.PaymentMethod) *models.PaymentMethod {
	h.methods.methods[m.ID] = m
	return m
}

func (h *harness) script(outcomes ...chargeOutcome) {
	h.charger.mu.Lock()
	defer h.charger.mu.Unlock()
	h.charger.script = append(h.charger.script, outcomes...)
}

func monthlyPlan(id string) *models.Plan {
	return &models.Plan{
		ID:           id,
		Name:         "Monthly",
		Price:        999,
		Currency:     "USD",
		BillingCycle: types.BillingCycleMonthly,
		IsActive:     true,
	}
}

func trialPlan(id string, days int) *models.Plan {
	p := monthlyPlan(id)
	p.TrialPeriodDays = days
	return p
}

func activeSub(id, userID, planID, methodID string, periodEnd time.Time) *models.Subscription {
	return &models.Subscription{
		ID:                 id,
		UserID:             userID,
		PlanID:             planID,
		Status:             types.SubscriptionStatusActive,
		StartDate:          periodEnd.AddDate(0, -1, 0),
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		PaymentMethodID:    methodID,
	}
}
