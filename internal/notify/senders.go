package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramSender renders notifications as Markdown messages for the
// Telegram Bot API.
type TelegramSender struct {
	token   string
	chatID  string
	client  *http.Client
	apiBase string
}

// NewTelegramSender creates a TelegramSender for the given bot token and
// chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiBase: "https://api.telegram.org",
	}
}

// Send renders the notification into a compact Markdown block and posts it
// to the configured chat.
func (t *TelegramSender) Send(ctx context.Context, n Notification) error {
	var b strings.Builder

	switch {
	case n.Trade != nil:
		tr := n.Trade
		if tr.ExposureQty.IsPositive() {
			b.WriteString("*Trade left exposure*\n")
		} else {
			b.WriteString("*Trade executed*\n")
		}
		fmt.Fprintf(&b, "`%s`  buy %s / sell %s\n", tr.Symbol, tr.BuyVenue, tr.SellVenue)
		fmt.Fprintf(&b, "matched `%s`  profit `%s %s`\n",
			tr.MatchedQty, tr.NetProfit, tr.Symbol.QuoteCurrency())
		if tr.ExposureQty.IsPositive() {
			fmt.Fprintf(&b, "exposure `%s %s %s`\n", tr.ExposureSide, tr.ExposureQty, tr.ExposureCcy)
		}
		fmt.Fprintf(&b, "result %s  mode %s", tr.Result, tr.Mode)
	case n.Breaker != "":
		b.WriteString("*Circuit breaker tripped*\n")
		fmt.Fprintf(&b, "%s breaker opened for `%s`", n.Breaker, n.Scope)
	default:
		fmt.Fprintf(&b, "*%s*", n.Event)
	}
	if n.Detail != "" {
		b.WriteString("\n")
		b.WriteString(n.Detail)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       b.String(),
		"parse_mode": "Markdown",
	}
	return postJSON(ctx, t.client, url, payload, "telegram")
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

// DiscordSender renders notifications as webhook embeds with one field per
// trade attribute.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Embed colors per event family.
const (
	colorGreen  = 0x2ecc71 // clean execution
	colorOrange = 0xe67e22 // partial / exposure
	colorRed    = 0xe74c3c // breaker trip
)

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

// Send renders the notification into a webhook embed and posts it.
func (d *DiscordSender) Send(ctx context.Context, n Notification) error {
	var embed discordEmbed

	switch {
	case n.Trade != nil:
		tr := n.Trade
		embed.Title = fmt.Sprintf("Trade %s: %s", tr.Result, tr.Symbol)
		embed.Color = colorGreen
		embed.Fields = []discordField{
			{Name: "Buy", Value: string(tr.BuyVenue), Inline: true},
			{Name: "Sell", Value: string(tr.SellVenue), Inline: true},
			{Name: "Matched", Value: tr.MatchedQty.String(), Inline: true},
			{Name: "Profit", Value: fmt.Sprintf("%s %s", tr.NetProfit, tr.Symbol.QuoteCurrency()), Inline: true},
			{Name: "Mode", Value: tr.Mode, Inline: true},
		}
		if tr.ExposureQty.IsPositive() {
			embed.Color = colorOrange
			embed.Fields = append(embed.Fields, discordField{
				Name:  "Exposure",
				Value: fmt.Sprintf("%s %s %s", tr.ExposureSide, tr.ExposureQty, tr.ExposureCcy),
			})
		}
	case n.Breaker != "":
		embed.Title = "Circuit breaker tripped"
		embed.Color = colorRed
		embed.Fields = []discordField{
			{Name: "Breaker", Value: n.Breaker, Inline: true},
			{Name: "Scope", Value: n.Scope, Inline: true},
		}
	default:
		embed.Title = n.Event
	}
	embed.Description = n.Detail

	payload := map[string]any{
		"embeds": []discordEmbed{embed},
	}
	return postJSON(ctx, d.client, d.webhookURL, payload, "discord")
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

func postJSON(ctx context.Context, client *http.Client, url string, payload any, name string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
