package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"idle_engine/internal/config"
	"idle_engine/internal/logbus"
	"idle_engine/internal/model"
)

type EmailSettingsStore interface {
	GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error)
}

const maxDigestEvents = 50

// EmailNotifier collects events into a digest and mails it once no new event
// has arrived for the summary window.
type EmailNotifier struct {
	store  EmailSettingsStore
	bus    *logbus.Bus
	smtp   config.SMTPConfig
	window time.Duration

	events chan AutomationEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewEmailNotifier(store EmailSettingsStore, bus *logbus.Bus, cfg config.NotifyConfig) *EmailNotifier {
	n := &EmailNotifier{
		store:  store,
		bus:    bus,
		smtp:   cfg.SMTP,
		window: cfg.SummaryWindow(),
		events: make(chan AutomationEvent, 200),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go n.run()
	return n
}

// Close sends whatever is still pending and stops the digest goroutine.
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.once.Do(func() { close(n.stop) })
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyAutomationEvent(_ context.Context, evt AutomationEvent) {
	select {
	case n.events <- evt:
	default:
		n.log("warn", "email notification dropped: queue full", map[string]any{
			"kind": string(evt.Kind),
			"task": evt.Task,
		})
	}
}

func (n *EmailNotifier) run() {
	defer close(n.done)

	var digest []AutomationEvent
	quiet := time.NewTimer(time.Hour)
	quiet.Stop()

	for {
		select {
		case evt := <-n.events:
			digest = append(digest, evt)
			switch {
			case n.window <= 0:
				n.deliver(digest, "immediate")
				digest = nil
			case len(digest) >= maxDigestEvents:
				quiet.Stop()
				n.deliver(digest, "full")
				digest = nil
			default:
				quiet.Reset(n.window)
			}
		case <-quiet.C:
			n.deliver(digest, "quiet")
			digest = nil
		case <-n.stop:
			quiet.Stop()
			for drained := false; !drained; {
				select {
				case evt := <-n.events:
					digest = append(digest, evt)
				default:
					drained = true
				}
			}
			n.deliver(digest, "shutdown")
			return
		}
	}
}

func (n *EmailNotifier) deliver(events []AutomationEvent, reason string) {
	if len(events) == 0 || n.store == nil {
		return
	}
	// Runs after stop during shutdown, so it gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	settings, ok, err := n.store.GetEmailSettings(ctx)
	switch {
	case err != nil:
		n.log("warn", "read email settings failed", map[string]any{"error": err.Error()})
		return
	case !ok || !settings.Enabled:
		n.log("debug", "email notifications disabled", map[string]any{"count": len(events), "reason": reason})
		return
	}
	if err := SendSummaryEmail(ctx, n.smtp, settings, events); err != nil {
		n.log("warn", "send email failed", map[string]any{"error": err.Error(), "count": len(events), "reason": reason})
		return
	}
	n.log("info", "notification email sent", map[string]any{"count": len(events), "reason": reason})
}

func (n *EmailNotifier) log(level, msg string, fields map[string]any) {
	if n.bus != nil {
		n.bus.Log(level, msg, fields)
	}
}

// ValidateEmailSettings checks the sender address and SMTP auth code.
func ValidateEmailSettings(s model.EmailSettings) error {
	addr := strings.TrimSpace(s.Email)
	if addr == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("invalid email: %w", err)
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

// SendSummaryEmail mails the events to the configured address, sending from
// that same address.
func SendSummaryEmail(ctx context.Context, override config.SMTPConfig, settings model.EmailSettings, events []AutomationEvent) error {
	if err := ValidateEmailSettings(settings); err != nil {
		return err
	}
	if len(events) == 0 {
		return errors.New("no events to send")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := strings.TrimSpace(settings.Email)
	server, err := resolveSMTPServer(addr, override)
	if err != nil {
		return err
	}
	htmlBody, textBody, err := buildSummaryBody(events)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", addr, "Idle Engine")
	msg.SetHeader("To", addr)
	msg.SetHeader("Subject", buildSummarySubject(events))
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	dialer := gomail.NewDialer(server.Host, server.Port, addr, strings.TrimSpace(settings.AuthCode))
	dialer.SSL = server.SSL
	return dialer.DialAndSend(msg)
}

type smtpServer struct {
	Host string
	Port int
	SSL  bool
}

// resolveSMTPServer prefers the configured server and otherwise guesses one
// from the address's mail domain.
func resolveSMTPServer(addr string, override config.SMTPConfig) (smtpServer, error) {
	if override.Host != "" {
		port := override.Port
		if port <= 0 {
			port = 465
		}
		return smtpServer{Host: override.Host, Port: port, SSL: override.UseSSL}, nil
	}

	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return smtpServer{}, errors.New("invalid email format")
	}
	domain := strings.ToLower(addr[at+1:])
	for _, known := range knownSMTPServers {
		for _, d := range known.domains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				return known.server, nil
			}
		}
	}
	return smtpServer{Host: "smtp." + domain, Port: 465, SSL: true}, nil
}

var knownSMTPServers = []struct {
	domains []string
	server  smtpServer
}{
	{[]string{"gmail.com", "googlemail.com"}, smtpServer{"smtp.gmail.com", 587, false}},
	{[]string{"outlook.com", "hotmail.com", "live.com"}, smtpServer{"smtp.office365.com", 587, false}},
	{[]string{"yahoo.com"}, smtpServer{"smtp.mail.yahoo.com", 465, true}},
	{[]string{"qq.com", "foxmail.com"}, smtpServer{"smtp.qq.com", 465, true}},
	{[]string{"163.com", "126.com"}, smtpServer{"smtp.163.com", 465, true}},
}

func buildSummarySubject(events []AutomationEvent) string {
	if len(events) == 1 {
		return "Idle Engine: " + events[0].Title()
	}
	return fmt.Sprintf("Idle Engine: %d notifications", len(events))
}

type summaryRow struct {
	At    string
	Title string
	Text  string
}

var summaryHTMLTpl = template.Must(template.New("summary").Parse(`<!doctype html>
<html>
  <body style="font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background:#f6f8fb;padding:24px;">
    <div style="max-width:640px;margin:0 auto;background:#fff;border:1px solid #e6e8ef;border-radius:12px;padding:20px;">
      <div style="font-size:16px;font-weight:700;">Idle Engine notifications</div>
      <table role="presentation" style="width:100%;margin-top:12px;border-collapse:collapse;font-size:13px;">
        {{ range . }}
        <tr>
          <td style="padding:8px;border-bottom:1px solid #eef0f6;color:#6b7280;white-space:nowrap;">{{ .At }}</td>
          <td style="padding:8px;border-bottom:1px solid #eef0f6;font-weight:600;">{{ .Title }}</td>
          <td style="padding:8px;border-bottom:1px solid #eef0f6;">{{ .Text }}</td>
        </tr>
        {{ end }}
      </table>
    </div>
  </body>
</html>
`))

func buildSummaryBody(events []AutomationEvent) (htmlBody, textBody string, err error) {
	rows := make([]summaryRow, 0, len(events))
	var text strings.Builder
	for _, e := range events {
		at := e.Time().Format("2006-01-02 15:04:05")
		rows = append(rows, summaryRow{At: at, Title: e.Title(), Text: e.Text()})
		fmt.Fprintf(&text, "%s  %s\n", at, e.Text())
	}
	var buf bytes.Buffer
	if err := summaryHTMLTpl.Execute(&buf, rows); err != nil {
		return "", "", err
	}
	return buf.String(), text.String(), nil
}
