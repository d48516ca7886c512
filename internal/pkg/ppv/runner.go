package ppv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/fanflowhq/fanflow/internal/pkg/fanvue"
	"github.com/fanflowhq/fanflow/internal/pkg/ledger"
)

// Runner errors.
var (
	ErrRunActive       = errors.New("a run for this recipient and script is already active")
	ErrUnknownTracking = errors.New("no active run for this tracking id")
	ErrRunnerStopped   = errors.New("runner is stopped")
)

// Policy decides what happens to the remaining segments when an offer
// expires or its payment fails.
type Policy string

const (
	PolicyStop Policy = "stop" // abort the rest of the script
	PolicySkip Policy = "skip" // continue with the next segment
)

// RunnerConfig carries the payment-gating knobs.
type RunnerConfig struct {
	PaymentTTL        time.Duration // offer lifetime before expiry handling
	ReminderEnabled   bool          // send reminders before expiring
	ReminderWait      time.Duration // shorter wait window after a reminder
	MaxResendAttempts int           // reminders per offer
	OnExpiry          Policy
}

// trackingEventType is the ledger event recorded when a tracking record
// reaches a terminal status.
const trackingEventType = "ppv.tracking"

type signalKind int

const (
	signalPaid signalKind = iota
	signalFailed
	signalCancel
)

type runSignal struct {
	kind       signalKind
	trackingID string // empty for cancel, which targets the run itself
	reason     string
}

// scriptRun is one in-flight walk over a segment sequence. Only its own
// goroutine mutates run state; the runner's maps are the sole shared
// structures and are guarded by the runner mutex.
type scriptRun struct {
	key         string
	recipientID string
	scriptID    string
	segments    []Segment
	tracking    *PaymentTracking
	signals     chan runSignal
}

// Runner drives script runs: plain segments are sent immediately, PPV
// segments send the offer and suspend the run until a payment signal arrives
// or the offer times out. At most one run is live per (recipient, script).
type Runner struct {
	sender fanvue.Sender
	ledger *ledger.Ledger
	cfg    RunnerConfig

	mu         sync.Mutex
	runs       map[string]*scriptRun
	byTracking map[string]*scriptRun
	stopped    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewRunner creates a runner delivering through the given sender and
// recording terminal payment outcomes to the ledger.
func NewRunner(sender fanvue.Sender, l *ledger.Ledger, cfg RunnerConfig) *Runner {
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = 24 * time.Hour
	}
	if cfg.ReminderWait <= 0 {
		cfg.ReminderWait = cfg.PaymentTTL / 4
	}
	if cfg.OnExpiry == "" {
		cfg.OnExpiry = PolicyStop
	}
	return &Runner{
		sender:     sender,
		ledger:     l,
		cfg:        cfg,
		runs:       make(map[string]*scriptRun),
		byTracking: make(map[string]*scriptRun),
		stopCh:     make(chan struct{}),
	}
}

func runKey(recipientID, scriptID string) string {
	return recipientID + "|" + scriptID
}

// Start begins a run for the given script body. It returns without waiting
// for delivery; the walk happens on its own goroutine. A second Start for the
// same (recipient, script) pair while a run is live returns ErrRunActive.
func (r *Runner) Start(recipientID, scriptID, script string) error {
	segments := SplitSegments(script)
	if len(segments) == 0 {
		return nil
	}

	run := &scriptRun{
		key:         runKey(recipientID, scriptID),
		recipientID: recipientID,
		scriptID:    scriptID,
		segments:    segments,
		signals:     make(chan runSignal, 4),
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	if _, exists := r.runs[run.key]; exists {
		r.mu.Unlock()
		return ErrRunActive
	}
	r.runs[run.key] = run
	r.wg.Add(1)
	r.mu.Unlock()

	go r.walk(run)
	return nil
}

// ConfirmPayment resumes the run waiting on the given tracking id.
func (r *Runner) ConfirmPayment(trackingID string) error {
	return r.signal(trackingID, runSignal{kind: signalPaid})
}

// FailPayment marks the offer's payment as failed.
func (r *Runner) FailPayment(trackingID, reason string) error {
	return r.signal(trackingID, runSignal{kind: signalFailed, reason: reason})
}

func (r *Runner) signal(trackingID string, sig runSignal) error {
	sig.trackingID = trackingID
	r.mu.Lock()
	run, ok := r.byTracking[trackingID]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownTracking
	}

	select {
	case run.signals <- sig:
		return nil
	default:
		// The run already left its waiting state.
		return ErrUnknownTracking
	}
}

// Cancel stops the live run for the given pair, if any. The pending timer is
// released and any outstanding tracking record goes terminal.
func (r *Runner) Cancel(recipientID, scriptID string) {
	r.mu.Lock()
	run, ok := r.runs[runKey(recipientID, scriptID)]
	r.mu.Unlock()
	if !ok {
		return
	}

	select {
	case run.signals <- runSignal{kind: signalCancel, reason: "cancelled by caller"}:
	default:
	}
}

// ActiveRuns returns the number of live runs.
func (r *Runner) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// PendingTrackings returns copies of every tracking record currently waiting
// on payment.
func (r *Runner) PendingTrackings() []PaymentTracking {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PaymentTracking, 0, len(r.byTracking))
	for _, run := range r.byTracking {
		if run.tracking != nil {
			out = append(out, *run.tracking)
		}
	}
	return out
}

// Tracking returns a copy of the pending tracking record for a live run.
func (r *Runner) Tracking(trackingID string) (PaymentTracking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byTracking[trackingID]
	if !ok || run.tracking == nil {
		return PaymentTracking{}, false
	}
	return *run.tracking, true
}

// Stop cancels every live run and waits for their goroutines to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	log.Info("[PPV Runner] All runs stopped")
}

// walk advances a run through its segments in source order.
func (r *Runner) walk(run *scriptRun) {
	defer r.wg.Done()
	defer r.finish(run)

	for idx := 0; idx < len(run.segments); idx++ {
		seg := run.segments[idx]

		if seg.Type == SegmentMessage {
			if err := r.send(run, seg.Text); err != nil {
				log.Errorf("[PPV Runner] Run %s aborted: %v", run.key, err)
				return
			}
			continue
		}

		if !r.awaitPayment(run, seg) {
			return
		}
	}

	log.Infof("[PPV Runner] Run %s completed (%d segments)", run.key, len(run.segments))
}

// awaitPayment sends the offer for one PPV segment and suspends the run until
// payment, failure, expiry, or cancellation. It reports whether the walk
// should continue with the next segment.
func (r *Runner) awaitPayment(run *scriptRun, seg Segment) bool {
	cmd := seg.Command

	if err := r.send(run, seg.Text); err != nil {
		log.Errorf("[PPV Runner] Run %s aborted sending offer: %v", run.key, err)
		return false
	}

	commandID := fmt.Sprintf("%s:%d", run.scriptID, cmd.Position)
	tracking := NewPaymentTracking(commandID, run.recipientID, cmd.Price, r.cfg.PaymentTTL)

	r.mu.Lock()
	run.tracking = tracking
	r.byTracking[tracking.ID] = run
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.byTracking, tracking.ID)
		run.tracking = nil
		r.mu.Unlock()
	}()

	log.Infof("[PPV Runner] Run %s awaiting payment %s ($%.2f, expires %s)",
		run.key, tracking.ID, tracking.Amount, tracking.ExpiresAt.Format(time.RFC3339))

	attempts := 0
	timer := time.NewTimer(r.cfg.PaymentTTL)
	defer timer.Stop()
	for {
		select {
		case sig := <-run.signals:
			// Duplicate deliveries can leave a signal for an earlier tracking
			// in the buffer; it must never open a later offer's gate.
			if sig.kind != signalCancel && sig.trackingID != tracking.ID {
				log.Warnf("[PPV Runner] Run %s ignoring signal for %s while awaiting %s",
					run.key, sig.trackingID, tracking.ID)
				continue
			}
			switch sig.kind {
			case signalPaid:
				now := time.Now()
				tracking.Status = PaymentPaid
				tracking.PaidAt = &now
				r.recordTracking(tracking, nil)
				if err := r.send(run, cmd.UnlockMessage()); err != nil {
					log.Errorf("[PPV Runner] Run %s aborted sending unlock: %v", run.key, err)
					return false
				}
				return true
			case signalFailed:
				tracking.Status = PaymentCancelled
				r.recordTracking(tracking, errors.New(sig.reason))
				return r.cfg.OnExpiry == PolicySkip
			case signalCancel:
				tracking.Status = PaymentCancelled
				r.recordTracking(tracking, errors.New(sig.reason))
				return false
			}

		case <-timer.C:
			if r.cfg.ReminderEnabled && attempts < r.cfg.MaxResendAttempts {
				attempts++
				if err := r.send(run, cmd.ReminderMessage()); err != nil {
					log.Errorf("[PPV Runner] Run %s aborted sending reminder: %v", run.key, err)
					return false
				}
				log.Infof("[PPV Runner] Run %s reminder %d/%d for %s",
					run.key, attempts, r.cfg.MaxResendAttempts, tracking.ID)
				timer.Reset(r.cfg.ReminderWait)
				continue
			}
			tracking.Status = PaymentExpired
			r.recordTracking(tracking, nil)
			log.Infof("[PPV Runner] Run %s payment %s expired (policy=%s)", run.key, tracking.ID, r.cfg.OnExpiry)
			return r.cfg.OnExpiry == PolicySkip

		case <-r.stopCh:
			tracking.Status = PaymentCancelled
			r.recordTracking(tracking, errors.New("runner stopped"))
			return false
		}
	}
}

func (r *Runner) send(run *scriptRun, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := r.sender.SendMessage(ctx, run.recipientID, text); err != nil {
		if r.ledger != nil {
			r.ledger.Record("script.send", map[string]any{
				"userUuid": run.recipientID,
				"scriptId": run.scriptID,
			}, ledger.StatusError, err)
		}
		return err
	}
	return nil
}

// recordTracking keeps a historical copy of a terminal tracking record in the
// ledger; the runner's own copy is released when the run moves on.
func (r *Runner) recordTracking(t *PaymentTracking, procErr error) {
	if r.ledger == nil {
		return
	}
	status := ledger.StatusSuccess
	if t.Status == PaymentCancelled {
		status = ledger.StatusError
	}
	r.ledger.Record(trackingEventType, map[string]any{
		"trackingId": t.ID,
		"commandId":  t.CommandID,
		"userUuid":   t.UserID,
		"amount":     t.Amount,
		"status":     string(t.Status),
	}, status, procErr)
}

func (r *Runner) finish(run *scriptRun) {
	r.mu.Lock()
	delete(r.runs, run.key)
	r.mu.Unlock()
}
