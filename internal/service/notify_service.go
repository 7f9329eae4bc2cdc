package service

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	"github.com/moneyquiz/routing-gateway/pkg/jobs"
)

// Notifier delivers a message to operator contacts.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, subject, body string) error
}

// SMTPNotifier sends plain-text mail through a relay host.
type SMTPNotifier struct {
	addr string
	from string
}

// NewSMTPNotifier constructs an SMTP notifier.
func NewSMTPNotifier(cfg config.NotificationConfig) *SMTPNotifier {
	return &SMTPNotifier{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from: cfg.From,
	}
}

// Notify sends one message to all recipients.
func (n *SMTPNotifier) Notify(_ context.Context, recipients []string, subject, body string) error {
	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("\r\n")
	msg.WriteString(body)

	return smtp.SendMail(n.addr, nil, n.from, recipients, []byte(msg.String()))
}

type notification struct {
	Subject string
	Body    string
}

// NotifyService queues operator notifications for asynchronous, best-effort
// delivery. Send failures are retried by the queue and never surface to the
// triggering request.
type NotifyService struct {
	notifier   Notifier
	queue      *jobs.Queue
	recipients []string
	enabled    bool
	logger     *zap.Logger
}

// NewNotifyService constructs the notification service and its worker queue.
func NewNotifyService(notifier Notifier, cfg config.NotificationConfig, logger *zap.Logger) *NotifyService {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &NotifyService{
		notifier:   notifier,
		recipients: cfg.Recipients,
		enabled:    cfg.Enabled && notifier != nil && len(cfg.Recipients) > 0,
		logger:     logger,
	}

	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotifyService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotifyService) Stop() {
	s.queue.Stop()
}

func (s *NotifyService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.notifier.Notify(ctx, s.recipients, payload.Subject, payload.Body)
}

func (s *NotifyService) enqueue(subject, body string) {
	if !s.enabled {
		return
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "operator_email",
		Payload: notification{Subject: subject, Body: body},
	})
	if err != nil {
		s.logger.Warn("notification enqueue failed", zap.String("subject", subject), zap.Error(err))
	}
}

// RollbackExecuted notifies operators that a rollback fired.
func (s *NotifyService) RollbackExecuted(rollbackType models.RollbackType, snapshot models.HealthSnapshot, triggers []string) {
	label := "(Automatic)"
	if rollbackType == models.RollbackTypeManual {
		label = "(Manual)"
	}
	subject := fmt.Sprintf("[Money Quiz] Emergency Rollback %s", label)

	body := strings.Builder{}
	body.WriteString("An emergency rollback has been executed for the Money Quiz routing gateway.\n\n")
	body.WriteString(fmt.Sprintf("Rollback Type: %s\n", capitalize(string(rollbackType))))
	body.WriteString(fmt.Sprintf("Timestamp: %s\n\n", time.Now().UTC().Format(time.RFC3339)))

	if rollbackType == models.RollbackTypeAuto && len(triggers) > 0 {
		body.WriteString("Triggers:\n")
		for _, trigger := range triggers {
			body.WriteString(fmt.Sprintf("- %s\n", trigger))
		}
		body.WriteString("\n")
	}

	body.WriteString("Current Metrics:\n")
	body.WriteString(fmt.Sprintf("- Error Rate: %.1f%%\n", snapshot.ErrorRate*100))
	body.WriteString(fmt.Sprintf("- Avg Response: %.1fs\n", snapshot.AvgResponse))
	body.WriteString(fmt.Sprintf("- Peak Memory: %dMB\n", int(snapshot.PeakMemoryMB)))
	body.WriteString(fmt.Sprintf("- Total Requests: %d\n\n", snapshot.Total))

	body.WriteString("All traffic has been routed back to the legacy system.\n")
	body.WriteString("Please investigate the issue before re-enabling modern routing.\n\n")
	body.WriteString("To re-enable routing after fixing issues:\n")
	body.WriteString("1. Clear the rollback flag via POST /api/v1/rollback/clear\n")
	body.WriteString("2. Reconfigure rollout fractions via PUT /api/v1/flags\n")

	s.enqueue(subject, body.String())
}

// CriticalHealth notifies operators about a critical health classification.
func (s *NotifyService) CriticalHealth(health models.SystemHealth) {
	body := strings.Builder{}
	body.WriteString("Critical issues detected in the Money Quiz routing gateway:\n\n")
	for _, issue := range health.Issues {
		body.WriteString(fmt.Sprintf("- %s\n", issue))
	}
	body.WriteString("\nAutomatic rollback may be triggered if issues persist.\n")

	s.enqueue("[Money Quiz] Critical Routing Issues Detected", body.String())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
