package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"idle_engine/internal/config"
	"idle_engine/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	events []AutomationEvent
}

func (r *recorder) NotifyAutomationEvent(_ context.Context, evt AutomationEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func TestMultiFansOutAndStamps(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, nil, b}.NotifyAutomationEvent(context.Background(), AutomationEvent{Kind: EventTaskComplete})
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both notifiers to receive the event")
	}
	if a.events[0].AtMs == 0 {
		t.Fatalf("expected timestamp to be set")
	}
}

func TestEventText(t *testing.T) {
	evt := AutomationEvent{Kind: EventAccountMismatch, Task: "achievementUnlocker", AppID: 440, GameName: "TF2", Message: "sign in again"}
	want := "Account mismatch [achievementUnlocker] TF2 (440): sign in again"
	if got := evt.Text(); got != want {
		t.Fatalf("Text() = %q, want %q", got, want)
	}
}

func TestDiscordSendEmbedPostsPayload(t *testing.T) {
	got := make(chan []*discordgo.MessageEmbed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		var payload struct {
			Embeds []*discordgo.MessageEmbed `json:"embeds"`
		}
		_ = json.Unmarshal([]byte(r.FormValue("payload_json")), &payload)
		got <- payload.Embeds
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordNotifier(srv.URL, nil)
	d.NotifyAutomationEvent(context.Background(), AutomationEvent{Kind: EventTaskComplete, Task: "cardFarming", RunID: "r1"})

	select {
	case embeds := <-got:
		if len(embeds) != 1 || embeds[0].Title != "Task complete" || embeds[0].Color != colorSuccess {
			t.Fatalf("unexpected embeds %+v", embeds)
		}
		if embeds[0].Footer == nil || embeds[0].Footer.Text != "run r1" {
			t.Fatalf("expected run footer")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("webhook not called")
	}
}

func TestDiscordSendEmbedReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()
	err := NewDiscordNotifier(srv.URL, nil).SendEmbed(context.Background(), buildEmbed(AutomationEvent{Kind: EventTaskFailed}))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSummaryBodyListsEveryEvent(t *testing.T) {
	events := []AutomationEvent{
		{AtMs: 1, Kind: EventSteamNotRunning, Task: "cardFarming"},
		{AtMs: 2, Kind: EventTaskComplete, Task: "achievementUnlocker"},
	}
	html, text, err := buildSummaryBody(events)
	if err != nil {
		t.Fatalf("buildSummaryBody: %v", err)
	}
	if strings.Count(text, "\n") != 2 || !strings.Contains(html, "Steam is not running") {
		t.Fatalf("unexpected body:\n%s\n%s", text, html)
	}
	if buildSummarySubject(events) != "Idle Engine: 2 notifications" {
		t.Fatalf("unexpected subject %q", buildSummarySubject(events))
	}
}

func TestResolveSMTPServer(t *testing.T) {
	srv, err := resolveSMTPServer("me@gmail.com", config.SMTPConfig{})
	if err != nil || srv.Host != "smtp.gmail.com" || srv.Port != 587 || srv.SSL {
		t.Fatalf("unexpected gmail server %+v %v", srv, err)
	}
	srv, err = resolveSMTPServer("me@mail.example.org", config.SMTPConfig{})
	if err != nil || srv.Host != "smtp.mail.example.org" || srv.Port != 465 || !srv.SSL {
		t.Fatalf("unexpected fallback server %+v %v", srv, err)
	}
	srv, err = resolveSMTPServer("me@gmail.com", config.SMTPConfig{Host: "relay.local"})
	if err != nil || srv.Host != "relay.local" || srv.Port != 465 {
		t.Fatalf("configured server should win, got %+v %v", srv, err)
	}
	if _, err := resolveSMTPServer("broken", config.SMTPConfig{}); err == nil {
		t.Fatalf("expected error for malformed address")
	}
}

type countingSettings struct {
	mu    sync.Mutex
	reads int
}

func (s *countingSettings) GetEmailSettings(context.Context) (model.EmailSettings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return model.EmailSettings{Enabled: false}, true, nil
}

func (s *countingSettings) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func TestEmailNotifierFlushesDigestOnClose(t *testing.T) {
	st := &countingSettings{}
	n := NewEmailNotifier(st, nil, config.NotifyConfig{SummaryWindowMs: 60000})
	n.NotifyAutomationEvent(context.Background(), AutomationEvent{Kind: EventTaskComplete, Task: "cardFarming"})
	n.NotifyAutomationEvent(context.Background(), AutomationEvent{Kind: EventTaskFailed, Task: "cardFarming"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st.count() != 1 {
		t.Fatalf("expected one digest delivery on close, got %d", st.count())
	}
	if err := n.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestEmailNotifierImmediateWithoutWindow(t *testing.T) {
	st := &countingSettings{}
	n := NewEmailNotifier(st, nil, config.NotifyConfig{SummaryWindowMs: -1})
	defer n.Close(context.Background())

	n.NotifyAutomationEvent(context.Background(), AutomationEvent{Kind: EventSteamNotRunning})
	n.NotifyAutomationEvent(context.Background(), AutomationEvent{Kind: EventSteamNotRunning})
	deadline := time.Now().Add(2 * time.Second)
	for st.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected two immediate deliveries, got %d", st.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestValidateEmailSettings(t *testing.T) {
	if err := ValidateEmailSettings(model.EmailSettings{Email: "me@qq.com", AuthCode: "x"}); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}
	if err := ValidateEmailSettings(model.EmailSettings{Email: "not an address", AuthCode: "x"}); err == nil {
		t.Fatalf("expected invalid email error")
	}
	if err := ValidateEmailSettings(model.EmailSettings{Email: "me@qq.com"}); err == nil {
		t.Fatalf("expected missing authCode error")
	}
}
