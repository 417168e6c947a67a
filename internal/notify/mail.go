package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/splax/statuspage/internal/domain"
)

// OrganizationLookup resolves the organization an event belongs to.
type OrganizationLookup interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error)
}

// MailConfig configures the Resend transport.
type MailConfig struct {
	APIKey  string
	From    string
	BaseURL string
}

// MailPublisher emails status changes to the organization's notify address via Resend.
type MailPublisher struct {
	client *resty.Client
	from   string
	orgs   OrganizationLookup
	logger *slog.Logger
}

type resendEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// NewMailPublisher constructs a MailPublisher.
func NewMailPublisher(cfg MailConfig, orgs OrganizationLookup, logger *slog.Logger) *MailPublisher {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(10*time.Second).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &MailPublisher{client: client, from: cfg.From, orgs: orgs, logger: logger.With("component", "mail")}
}

// Name implements Publisher.
func (p *MailPublisher) Name() string { return "mail" }

// Publish implements Publisher. Events without a mail template, and
// organizations without a notify address, are skipped.
func (p *MailPublisher) Publish(ctx context.Context, env Envelope) error {
	msg, ok, err := composeMail(env)
	if err != nil || !ok {
		return err
	}
	org, err := p.orgs.GetOrganizationByID(ctx, env.Channel)
	if err != nil {
		return fmt.Errorf("resolve organization: %w", err)
	}
	if strings.TrimSpace(org.NotifyEmail) == "" {
		return nil
	}
	msg.From = p.from
	msg.To = []string{org.NotifyEmail}

	var apiErr resendError
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("resend rejected email (%d): %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("resend rejected email (%d)", resp.StatusCode())
	}
	p.logger.Debug("status email sent", "organization_id", org.ID, "event", env.Event)
	return nil
}

type mailSubject struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Service     *struct {
		Name string `json:"name"`
	} `json:"service"`
}

func composeMail(env Envelope) (resendEmail, bool, error) {
	switch env.Event {
	case domain.EventServiceStatusChanged, domain.EventIncidentCreated, domain.EventIncidentUpdated:
	default:
		return resendEmail{}, false, nil
	}
	var subject mailSubject
	if err := json.Unmarshal(env.Payload, &subject); err != nil {
		return resendEmail{}, false, fmt.Errorf("decode mail payload: %w", err)
	}
	serviceName := subject.Name
	if subject.Service != nil {
		serviceName = subject.Service.Name
	}
	if serviceName == "" {
		return resendEmail{}, false, errors.New("mail payload missing service name")
	}
	headline := serviceName
	if subject.Title != "" {
		headline = subject.Title
	}
	status := humanStatus(subject.Status)

	var body strings.Builder
	fmt.Fprintf(&body, "<h2>Status Update for %s</h2>", html.EscapeString(serviceName))
	fmt.Fprintf(&body, "<p>Current Status: <strong>%s</strong></p>", html.EscapeString(status))
	if subject.Title != "" {
		fmt.Fprintf(&body, "<p>Incident: %s</p>", html.EscapeString(subject.Title))
	}
	if subject.Description != "" {
		fmt.Fprintf(&body, "<p>Details: %s</p>", html.EscapeString(subject.Description))
	}
	body.WriteString("<p>View more details on your status page.</p>")

	return resendEmail{
		Subject: fmt.Sprintf("[%s] %s", status, headline),
		HTML:    body.String(),
	}, true, nil
}

func humanStatus(raw string) string {
	words := strings.Split(strings.ToLower(raw), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
