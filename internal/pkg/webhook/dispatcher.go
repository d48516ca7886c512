package webhook

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/fanflowhq/fanflow/internal/pkg/autoresponse"
	"github.com/fanflowhq/fanflow/internal/pkg/config"
	"github.com/fanflowhq/fanflow/internal/pkg/ledger"
	"github.com/fanflowhq/fanflow/internal/pkg/ppv"
)

// Boundary errors, mapped to HTTP statuses by the controller.
var (
	ErrSecretNotConfigured = errors.New("webhook secret is not configured")
	ErrMissingSignature    = errors.New("missing signature header")
	ErrInvalidSignature    = errors.New("invalid signature")
)

// autoReplyScriptID names the implicit script run started for message
// auto-replies, so duplicate triggers for the same fan collapse onto one run.
const autoReplyScriptID = "auto-reply"

// Dispatcher verifies inbound webhook deliveries, acknowledges them
// synchronously, and processes each event on its own supervised goroutine.
// Duplicate deliveries are possible and tolerated; handler failures are
// recorded in the ledger and never reach the HTTP response.
type Dispatcher struct {
	settings  *config.Settings
	ledger    *ledger.Ledger
	scheduler *autoresponse.Scheduler
	runner    *ppv.Runner

	wg sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(settings *config.Settings, l *ledger.Ledger, scheduler *autoresponse.Scheduler, runner *ppv.Runner) *Dispatcher {
	return &Dispatcher{
		settings:  settings,
		ledger:    l,
		scheduler: scheduler,
		runner:    runner,
	}
}

// Accept verifies and acknowledges one provider webhook delivery. On success
// the event is processed asynchronously after the ack is returned; a payload
// that fails to parse after a valid signature is recorded as an error and
// still acknowledged.
func (d *Dispatcher) Accept(rawBody []byte, signature string) (*Ack, error) {
	ev, err := d.verify(rawBody, signature)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		// Valid signature, malformed payload: already recorded, ack anyway.
		return &Ack{Success: true, ReceivedAt: time.Now()}, nil
	}

	ack := &Ack{Success: true, Event: ev.Type, ReceivedAt: time.Now()}
	d.spawn(ev, d.process)
	return ack, nil
}

// AcceptPayment verifies and acknowledges one PPV payment webhook delivery.
func (d *Dispatcher) AcceptPayment(rawBody []byte, signature string) (*Ack, error) {
	ev, err := d.verify(rawBody, signature)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return &Ack{Success: true, ReceivedAt: time.Now()}, nil
	}

	ack := &Ack{Success: true, Event: ev.Type, ReceivedAt: time.Now()}
	d.spawn(ev, d.processPayment)
	return ack, nil
}

func (d *Dispatcher) verify(rawBody []byte, signature string) (*Event, error) {
	if d.settings.WebhookSecret == "" {
		return nil, ErrSecretNotConfigured
	}
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if !VerifySignature(rawBody, signature, d.settings.WebhookSecret) {
		return nil, ErrInvalidSignature
	}

	ev, err := ParseEvent(rawBody)
	if err != nil {
		log.Errorf("[Webhook] Malformed payload after valid signature: %v", err)
		d.ledger.Record("malformed", nil, ledger.StatusError, err)
		return nil, nil
	}
	return ev, nil
}

// spawn runs handler(ev) on its own goroutine with panic supervision, so one
// bad event can never take down the dispatcher or block later deliveries.
func (d *Dispatcher) spawn(ev *Event, handler func(*Event)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("handler panic: %v", rec)
				log.Errorf("[Webhook] %s: %v", ev.Type, err)
				d.ledger.Record(string(ev.Type), ev.Data.AsMap(), ledger.StatusError, err)
			}
		}()
		handler(ev)
	}()
}

// Drain waits for all in-flight event processing to finish.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

// process routes one provider event to its handler.
func (d *Dispatcher) process(ev *Event) {
	log.Infof("[Webhook] Processing event: %s", ev.Type)

	switch ev.Type {
	case EventMessageReceived:
		d.handleMessageReceived(ev)
	case EventSubscriberNew:
		d.handleNewSubscriber(ev)
	case EventTipReceived:
		d.handleRevenue(ev, ledger.RevenueTip, "Thank you so much for the tip! 💖")
	case EventPurchaseReceived:
		d.handleRevenue(ev, ledger.RevenuePurchase, "Thank you for your purchase! I hope you enjoy it! 😊")
	case EventSubscriptionRenewed:
		d.handleSubscriptionRenewed(ev)
	case EventSubscriptionCancelled:
		d.ledger.Record(string(ev.Type), ev.Data.AsMap(), ledger.StatusSuccess, nil)
	default:
		log.Infof("[Webhook] Unknown event type ignored: %s", ev.Type)
	}
}

// handleMessageReceived triggers the auto-response flow: a configured script
// runs through the PPV runner (payment-gated), otherwise the plain reply text
// is scheduled immediately.
func (d *Dispatcher) handleMessageReceived(ev *Event) {
	data := ev.Data
	if data.UserID == "" || data.Message == nil {
		err := errors.New("missing required data for message.received")
		d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, err)
		return
	}

	if d.scheduler.ShouldRespond(data.UserID) {
		if script := d.settings.AutoResponseScript; script != "" {
			if err := d.runner.Start(data.UserID, autoReplyScriptID, script); err != nil && !errors.Is(err, ppv.ErrRunActive) {
				d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, err)
				return
			}
		} else {
			d.scheduler.Schedule(data.UserID, d.settings.AutoResponseText, 0)
		}
	}

	d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)
}

func (d *Dispatcher) handleNewSubscriber(ev *Event) {
	data := ev.Data
	if data.UserID == "" {
		err := errors.New("missing userUuid for subscriber.new")
		d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, err)
		return
	}

	name := data.Username
	if name == "" {
		name = "there"
	}
	welcome := fmt.Sprintf("Welcome! Thank you for subscribing, %s! 🎉", name)
	d.scheduler.Schedule(data.UserID, welcome, d.settings.WelcomeDelay)

	d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)
}

// handleRevenue covers tips and purchases: record the monetary event, thank
// the fan right away.
func (d *Dispatcher) handleRevenue(ev *Event, revType ledger.RevenueType, thankYou string) {
	data := ev.Data
	if data.Amount <= 0 || data.Currency == "" {
		err := fmt.Errorf("missing amount or currency for %s", ev.Type)
		d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, err)
		return
	}

	d.ledger.RecordRevenue(ledger.RevenueEvent{
		Type:      revType,
		Amount:    data.Amount,
		Currency:  data.Currency,
		UserID:    data.UserID,
		Timestamp: time.Now(),
	})

	if data.UserID != "" {
		d.scheduler.Schedule(data.UserID, thankYou, 0)
	}

	d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)
}

func (d *Dispatcher) handleSubscriptionRenewed(ev *Event) {
	data := ev.Data
	if data.Amount > 0 && data.Currency != "" {
		d.ledger.RecordRevenue(ledger.RevenueEvent{
			Type:      ledger.RevenueSubscription,
			Amount:    data.Amount,
			Currency:  data.Currency,
			UserID:    data.UserID,
			Timestamp: time.Now(),
		})
	}
	d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)
}

// processPayment routes PPV payment confirmations into the runner.
func (d *Dispatcher) processPayment(ev *Event) {
	log.Infof("[Webhook] Processing PPV event: %s", ev.Type)
	data := ev.Data

	switch ev.Type {
	case EventPPVPaymentReceived:
		if data.TrackingID == "" {
			d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, errors.New("missing trackingId"))
			return
		}
		if err := d.runner.ConfirmPayment(data.TrackingID); err != nil {
			d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, err)
			return
		}
		d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)

	case EventPPVPaymentFailed:
		if data.TrackingID == "" {
			d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, errors.New("missing trackingId"))
			return
		}
		reason := data.Reason
		if reason == "" {
			reason = "payment failed"
		}
		if err := d.runner.FailPayment(data.TrackingID, reason); err != nil {
			d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusError, err)
			return
		}
		d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)

	case EventPPVUnlocked:
		d.ledger.Record(string(ev.Type), data.AsMap(), ledger.StatusSuccess, nil)

	default:
		log.Infof("[Webhook] Unknown PPV event type ignored: %s", ev.Type)
	}
}
