package reports

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/meridianrx/fillengine/internal/prescriptions"
)

// SMTPConfig holds outbound mail configuration.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// From is the sender address on pharmacy reports and alerts.
	From string
	// DevAddress receives data-quality and configuration alerts.
	DevAddress string
	// PharmacyAddresses maps pharmacy name to report recipient.
	PharmacyAddresses map[string]string
}

// Sender delivers mail via SMTP.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends pharmacy reports and developer alerts.
type Mailer struct {
	cfg    SMTPConfig
	sender Sender
	logger *zap.Logger
}

// NewMailer creates a mailer. A nil sender dials the configured SMTP host.
func NewMailer(cfg SMTPConfig, sender Sender, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	}
	return &Mailer{cfg: cfg, sender: sender, logger: logger}
}

// SendReport emails one pharmacy's fill report. Pharmacies without a
// configured address fall back to the developer address.
func (m *Mailer) SendReport(r *Report, date time.Time) error {
	to, ok := m.cfg.PharmacyAddresses[r.Pharmacy]
	if !ok {
		to = m.cfg.DevAddress
		m.logger.Warn("no report address for pharmacy, sending to dev",
			zap.String("pharmacy", r.Pharmacy))
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", fmt.Sprintf("Fill report %s — %s", date.Format("2006-01-02"), r.Pharmacy))
	msg.SetBody("text/plain", r.Body())

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send report to %s: %w", r.Pharmacy, err)
	}

	m.logger.Info("report sent",
		zap.String("pharmacy", r.Pharmacy),
		zap.Int("rows", len(r.Rows())))
	return nil
}

// DataQuality reports unresolved medication/pharmacy lookups to the
// developer channel. Failures are logged, never propagated: a dead alert
// channel must not stop the batch.
func (m *Mailer) DataQuality(subject string, anomalies []prescriptions.Anomaly) {
	body := fmt.Sprintf("Data quality anomalies while resolving %s:\n\n", subject)
	for _, a := range anomalies {
		body += fmt.Sprintf("rx %d: unresolved %s (%q)\n", a.PrescriptionID, a.Field, a.Value)
	}
	m.alert("Fill engine data quality: "+subject, body)
}

// ConfigAlert reports a routing misconfiguration to the developer channel.
func (m *Mailer) ConfigAlert(subject, body string) {
	m.alert("Fill engine configuration: "+subject, body)
}

// Crash reports an unexpected failure, including the stack, to the
// developer channel.
func (m *Mailer) Crash(subject string, stack []byte) {
	m.alert("Fill engine crash: "+subject, string(stack))
}

func (m *Mailer) alert(subject, body string) {
	if m.cfg.DevAddress == "" {
		m.logger.Warn("no dev address configured, dropping alert", zap.String("subject", subject))
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", m.cfg.DevAddress)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		m.logger.Error("alert send failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
