package webhook

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanflowhq/fanflow/internal/pkg/autoresponse"
	"github.com/fanflowhq/fanflow/internal/pkg/config"
	"github.com/fanflowhq/fanflow/internal/pkg/fanvue"
	"github.com/fanflowhq/fanflow/internal/pkg/ledger"
	"github.com/fanflowhq/fanflow/internal/pkg/ppv"
)

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) SendMessage(ctx context.Context, recipientID, text string) (*fanvue.SendConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return &fanvue.SendConfirmation{MessageID: "m1"}, nil
}

func (c *captureSender) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

type testEnv struct {
	dispatcher *Dispatcher
	ledger     *ledger.Ledger
	sender     *captureSender
	scheduler  *autoresponse.Scheduler
	runner     *ppv.Runner
	secret     string
}

func newTestEnv(settings *config.Settings) *testEnv {
	sender := &captureSender{}
	l := ledger.New(ledger.NewMemoryStore(100), 0)
	scheduler := autoresponse.NewScheduler(sender, settings.AutoResponseEnabled)
	runner := ppv.NewRunner(sender, l, ppv.RunnerConfig{PaymentTTL: time.Hour})
	return &testEnv{
		dispatcher: NewDispatcher(settings, l, scheduler, runner),
		ledger:     l,
		sender:     sender,
		scheduler:  scheduler,
		runner:     runner,
		secret:     settings.WebhookSecret,
	}
}

func (e *testEnv) close() {
	e.dispatcher.Drain()
	e.scheduler.Stop()
	e.runner.Stop()
}

func (e *testEnv) accept(t *testing.T, body string) *Ack {
	t.Helper()
	ack, err := e.dispatcher.Accept([]byte(body), sign([]byte(body), e.secret))
	require.NoError(t, err)
	require.NotNil(t, ack)
	return ack
}

func (e *testEnv) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func (e *testEnv) findEntry(eventType string) (ledger.Entry, bool) {
	for _, entry := range e.ledger.Recent(100) {
		if entry.EventType == eventType {
			return entry, true
		}
	}
	return ledger.Entry{}, false
}

func defaultSettings() *config.Settings {
	return &config.Settings{
		WebhookSecret:       "topsecret",
		AutoResponseEnabled: true,
		AutoResponseText:    "Thanks for your message!",
	}
}

func TestAcceptRejectsWithoutSecret(t *testing.T) {
	settings := defaultSettings()
	settings.WebhookSecret = ""
	env := newTestEnv(settings)
	defer env.close()

	ack, err := env.dispatcher.Accept([]byte(`{}`), "whatever")
	assert.Nil(t, ack)
	assert.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestAcceptRejectsBadSignatures(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	body := []byte(`{"event":"message.received"}`)

	_, err := env.dispatcher.Accept(body, "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = env.dispatcher.Accept(body, sign(body, "wrongsecret"))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAcceptAcksMalformedPayloadAfterValidSignature(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	ack := env.accept(t, `this is not json`)
	assert.True(t, ack.Success)
	assert.Empty(t, ack.Event)

	entry, ok := env.findEntry("malformed")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusError, entry.Status)
}

func TestAcceptMessageReceivedSchedulesAutoReply(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	ack := env.accept(t, `{"event":"message.received","data":{"userUuid":"fan-1","message":{"id":"m1","content":"hi"}}}`)
	assert.Equal(t, EventMessageReceived, ack.Event)

	env.waitFor(t, func() bool { return len(env.sender.messages()) == 1 })
	assert.Equal(t, "Thanks for your message!", env.sender.messages()[0])

	entry, ok := env.findEntry(string(EventMessageReceived))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusSuccess, entry.Status)
}

func TestAcceptMessageReceivedMissingDataRecordsError(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	env.accept(t, `{"event":"message.received","data":{"userUuid":"fan-1"}}`)
	env.dispatcher.Drain()

	entry, ok := env.findEntry(string(EventMessageReceived))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusError, entry.Status)
	assert.Empty(t, env.sender.messages())
}

func TestAcceptDisabledAutoResponseStillRecords(t *testing.T) {
	settings := defaultSettings()
	settings.AutoResponseEnabled = false
	env := newTestEnv(settings)
	defer env.close()

	env.accept(t, `{"event":"message.received","data":{"userUuid":"fan-1","message":{"id":"m1","content":"hi"}}}`)
	env.dispatcher.Drain()

	entry, ok := env.findEntry(string(EventMessageReceived))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusSuccess, entry.Status)
	assert.Empty(t, env.sender.messages())
}

func TestAcceptDuplicateDeliveriesRecordedTwice(t *testing.T) {
	settings := defaultSettings()
	settings.AutoResponseEnabled = false
	env := newTestEnv(settings)
	defer env.close()

	body := `{"event":"message.received","data":{"userUuid":"fan-1","message":{"id":"m1","content":"hi"}}}`
	env.accept(t, body)
	env.accept(t, body)
	env.dispatcher.Drain()

	count := 0
	for _, entry := range env.ledger.Recent(100) {
		if entry.EventType == string(EventMessageReceived) {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestAcceptSubscriberNewSchedulesDelayedWelcome(t *testing.T) {
	settings := defaultSettings()
	settings.WelcomeDelay = time.Hour
	env := newTestEnv(settings)
	defer env.close()

	env.accept(t, `{"event":"subscriber.new","data":{"userUuid":"fan-1","username":"Alex"}}`)
	env.dispatcher.Drain()

	env.waitFor(t, func() bool { return env.scheduler.Pending() == 1 })
	assert.Empty(t, env.sender.messages())
}

func TestAcceptTipRecordsRevenueAndThanks(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	env.accept(t, `{"event":"tip.received","data":{"userUuid":"fan-1","amount":25,"currency":"USD"}}`)
	env.dispatcher.Drain()

	env.waitFor(t, func() bool { return len(env.sender.messages()) == 1 })
	assert.Contains(t, env.sender.messages()[0], "tip")

	stats := env.ledger.RevenueStats(ledger.PeriodAll)
	assert.Equal(t, 25.0, stats.Total)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 25.0, stats.ByType[ledger.RevenueTip])
}

func TestAcceptTipWithoutAmountRecordsError(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	env.accept(t, `{"event":"tip.received","data":{"userUuid":"fan-1"}}`)
	env.dispatcher.Drain()

	entry, ok := env.findEntry(string(EventTipReceived))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusError, entry.Status)
	assert.Equal(t, 0, env.ledger.RevenueStats(ledger.PeriodAll).Count)
}

func TestAcceptUnknownEventIsIgnored(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	ack := env.accept(t, `{"event":"something.else","data":{}}`)
	assert.Equal(t, EventType("something.else"), ack.Event)
	env.dispatcher.Drain()

	_, ok := env.findEntry("something.else")
	assert.False(t, ok)
}

func TestAcceptPaymentDrivesScriptRun(t *testing.T) {
	settings := defaultSettings()
	settings.AutoResponseScript = "Hi! [PPV:photo:15:Nude set] Thanks"
	env := newTestEnv(settings)
	defer env.close()

	env.accept(t, `{"event":"message.received","data":{"userUuid":"fan-1","message":{"id":"m1","content":"hey"}}}`)

	env.waitFor(t, func() bool { return len(env.runner.PendingTrackings()) == 1 })
	tracking := env.runner.PendingTrackings()[0]

	body := fmt.Sprintf(`{"event":"ppv.payment.received","data":{"userUuid":"fan-1","trackingId":%q,"amount":15,"currency":"USD"}}`, tracking.ID)
	ack, err := env.dispatcher.AcceptPayment([]byte(body), sign([]byte(body), env.secret))
	require.NoError(t, err)
	assert.Equal(t, EventPPVPaymentReceived, ack.Event)

	env.waitFor(t, func() bool { return env.runner.ActiveRuns() == 0 })
	msgs := env.sender.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Thanks", msgs[3])
}

func TestAcceptPaymentUnknownTrackingRecordsError(t *testing.T) {
	env := newTestEnv(defaultSettings())
	defer env.close()

	body := `{"event":"ppv.payment.received","data":{"trackingId":"ppv_nope"}}`
	ack, err := env.dispatcher.AcceptPayment([]byte(body), sign([]byte(body), env.secret))
	require.NoError(t, err)
	assert.True(t, ack.Success)
	env.dispatcher.Drain()

	entry, ok := env.findEntry(string(EventPPVPaymentReceived))
	require.True(t, ok)
	assert.Equal(t, ledger.StatusError, entry.Status)
}
