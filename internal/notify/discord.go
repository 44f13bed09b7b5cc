package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"idle_engine/internal/logbus"
)

const (
	colorDanger  = 0xE74C3C
	colorWarning = 0xF1C40F
	colorSuccess = 0x2ECC71
)

// DiscordNotifier posts one embed per event to a webhook. Sends run on their
// own goroutine so schedulers never wait on Discord.
type DiscordNotifier struct {
	url    string
	client *http.Client
	bus    *logbus.Bus
}

func NewDiscordNotifier(webhookURL string, bus *logbus.Bus) *DiscordNotifier {
	return &DiscordNotifier{
		url:    strings.TrimSpace(webhookURL),
		client: &http.Client{Timeout: 10 * time.Second},
		bus:    bus,
	}
}

func (d *DiscordNotifier) NotifyAutomationEvent(_ context.Context, evt AutomationEvent) {
	if d.url == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := d.SendEmbed(ctx, buildEmbed(evt)); err != nil && d.bus != nil {
			d.bus.Log("warn", "discord notification failed", map[string]any{"error": err.Error(), "kind": string(evt.Kind)})
		}
	}()
}

func buildEmbed(evt AutomationEvent) *discordgo.MessageEmbed {
	color := colorWarning
	switch evt.Kind {
	case EventAccountMismatch, EventTaskFailed, EventOutdatedCredentials:
		color = colorDanger
	case EventTaskComplete:
		color = colorSuccess
	}
	embed := &discordgo.MessageEmbed{
		Title:       evt.Title(),
		Description: evt.Message,
		Color:       color,
		Timestamp:   evt.Time().UTC().Format(time.RFC3339),
	}
	if evt.Task != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Task", Value: evt.Task, Inline: true})
	}
	if evt.GameName != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Game",
			Value:  fmt.Sprintf("%s (%d)", evt.GameName, evt.AppID),
			Inline: true,
		})
	}
	if evt.RunID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "run " + evt.RunID}
	}
	return embed
}

func (d *DiscordNotifier) SendEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	payload := struct {
		Embeds []*discordgo.MessageEmbed `json:"embeds"`
	}{
		Embeds: []*discordgo.MessageEmbed{embed},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		writer.Close()
		return fmt.Errorf("failed to serialize webhook embed: %w", err)
	}
	if err := writer.WriteField("payload_json", string(payloadJSON)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to prepare webhook embed payload: %w", err)
	}
	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize webhook embed payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, &body)
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
