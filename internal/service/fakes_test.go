package service

import (
	"context"
	"errors"
	"time"

	"github.com/example/meta-conversions-relay/internal/capi"
	"github.com/example/meta-conversions-relay/internal/model"
)

var errFakeUnavailable = errors.New("fake backend unavailable")

type fakeOrderRepo struct {
	orders map[int64]*model.Order
	sent   map[int64]bool

	markCalls int
	listErr   error
	listCalls int
}

func newFakeOrderRepo(orders ...*model.Order) *fakeOrderRepo {
	repo := &fakeOrderRepo{
		orders: map[int64]*model.Order{},
		sent:   map[int64]bool{},
	}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}

	return repo
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id int64) (*model.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}

	return order, nil
}

func (f *fakeOrderRepo) ListUnsentCompleted(_ context.Context, limit int) ([]int64, error) {
	f.listCalls++

	if f.listErr != nil {
		return nil, f.listErr
	}

	var ids []int64
	for id, order := range f.orders {
		if order.Status == model.OrderStatusCompleted && !f.sent[id] {
			ids = append(ids, id)
		}
	}

	// Deterministic order for assertions.
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[j] < ids[i] {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}

func (f *fakeOrderRepo) IsSent(_ context.Context, id int64) (bool, error) {
	if _, ok := f.orders[id]; !ok {
		return false, model.ErrOrderNotFound
	}

	return f.sent[id], nil
}

func (f *fakeOrderRepo) MarkSent(_ context.Context, id int64, _ time.Time) error {
	f.markCalls++
	f.sent[id] = true

	return nil
}

func (f *fakeOrderRepo) SetTracking(_ context.Context, id int64, tracking *model.Tracking) error {
	order, ok := f.orders[id]
	if !ok {
		return model.ErrOrderNotFound
	}

	order.Tracking = *tracking

	return nil
}

type fakeSettingsRepo struct {
	settings *model.Settings
	getErr   error
}

func (f *fakeSettingsRepo) Get(context.Context) (*model.Settings, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	copied := *f.settings

	return &copied, nil
}

func (f *fakeSettingsRepo) Save(_ context.Context, settings *model.Settings) error {
	f.settings = settings
	return nil
}

type fakeAuditRepo struct {
	entries []*model.AuditEntry
}

func (f *fakeAuditRepo) Append(_ context.Context, entry *model.AuditEntry, _ int) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _ string, _ int) ([]*model.AuditEntry, error) {
	return f.entries, nil
}

func (f *fakeAuditRepo) Clear(context.Context) error {
	f.entries = nil
	return nil
}

type fakeRunRepo struct {
	saved *model.RunSummary
}

func (f *fakeRunRepo) Save(_ context.Context, summary *model.RunSummary) error {
	f.saved = summary
	return nil
}

func (f *fakeRunRepo) Last(context.Context) (*model.RunSummary, error) {
	return f.saved, nil
}

type fakeLock struct {
	held         bool
	acquireCalls int
	releaseCalls int
	acquireErr   error
}

func (f *fakeLock) TryAcquire(_ context.Context, _ time.Duration) (bool, error) {
	f.acquireCalls++

	if f.acquireErr != nil {
		return false, f.acquireErr
	}

	if f.held {
		return false, nil
	}

	f.held = true

	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releaseCalls++
	f.held = false

	return nil
}

// fakeSender scripts per-order outcomes; unscripted orders succeed.
type fakeSender struct {
	sendCalls int
	sentIDs   []string
	failFor   map[string]capi.Outcome
}

func (f *fakeSender) Send(_ context.Context, event *capi.Event, _ *model.Settings) capi.Outcome {
	f.sendCalls++
	f.sentIDs = append(f.sentIDs, event.EventID)

	if outcome, ok := f.failFor[event.EventID]; ok {
		return outcome
	}

	return capi.Outcome{Status: model.StatusSent, Message: "events_received:1", EventsReceived: 1}
}

func relayFixture(orders ...*model.Order) (*RelayServiceImpl, *fakeOrderRepo, *fakeSettingsRepo, *fakeAuditRepo, *fakeSender) {
	settings := model.DefaultSettings()
	settings.PixelID = "123456"
	settings.AccessToken = "token-abcd"

	orderRepo := newFakeOrderRepo(orders...)
	settingsRepo := &fakeSettingsRepo{settings: settings}
	auditRepo := &fakeAuditRepo{}
	sender := &fakeSender{failFor: map[string]capi.Outcome{}}

	relay := NewRelayServiceImpl(orderRepo, settingsRepo, auditRepo, sender)

	return relay, orderRepo, settingsRepo, auditRepo, sender
}

func completedOrder(id int64) *model.Order {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	return &model.Order{
		ID:           id,
		Status:       model.OrderStatusCompleted,
		BillingEmail: "buyer@example.com",
		Total:        10,
		Currency:     "EUR",
		Items:        []model.OrderItem{{ProductID: 1, Quantity: 1}},
		CreatedAt:    created,
	}
}
