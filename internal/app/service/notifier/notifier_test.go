package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/clock"
	cfgpkg "github.com/fatflowers/biller/pkg/config"
	"github.com/fatflowers/biller/pkg/types"
	"go.uber.org/zap"
)

var notifyNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB, PreferSimpleProtocol: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cfg := &cfgpkg.Config{Webhook: cfgpkg.WebhookConfig{DeliveryTimeout: 5 * time.Second}}
	svc := NewService(store.NewWebhookStore(gdb), clock.NewFixed(notifyNow), cfg, zap.NewNop().Sugar())
	return svc, mock
}

func webhookRows(url, secret, events string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "url", "secret", "events", "is_active", "failed_attempts"}).
		AddRow("wh-1", "user-1", url, secret, []byte(events), true, 0)
}

func TestNotify_DeliversSignedEvent(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotSig, gotID, gotTS string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotID = r.Header.Get("X-Webhook-Id")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook"`)).
		WillReturnRows(webhookRows(srv.URL, "s3cret", `["payment.succeeded"]`))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "webhook" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	svc.Notify(context.Background(), "user-1", types.WebhookEventPaymentSucceeded, map[string]string{"hello": "world"})
	svc.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, gotBody)
	require.Equal(t, Sign(gotBody, "s3cret"), gotSig)
	require.NotEmpty(t, gotID)
	require.NotEmpty(t, gotTS)

	var evt Event
	require.NoError(t, json.Unmarshal(gotBody, &evt))
	require.Equal(t, types.WebhookEventPaymentSucceeded, evt.Type)
	require.Equal(t, notifyNow.Unix(), evt.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotify_SkipsUnsubscribedWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("unsubscribed webhook must not be called")
	}))
	defer srv.Close()

	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook"`)).
		WillReturnRows(webhookRows(srv.URL, "s3cret", `["subscription.canceled"]`))

	svc.Notify(context.Background(), "user-1", types.WebhookEventPaymentSucceeded, nil)
	svc.Wait()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotify_EndpointErrorRecordedNotRaised(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "webhook"`)).
		WillReturnRows(webhookRows(srv.URL, "s3cret", `["payment.failed"]`))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "webhook" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// must not panic or block the caller
	svc.Notify(context.Background(), "user-1", types.WebhookEventPaymentFailed, nil)
	svc.Wait()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	require.Equal(t, Sign(body, "secret"), Sign(body, "secret"))
	require.NotEqual(t, Sign(body, "secret"), Sign(body, "other"))
}
