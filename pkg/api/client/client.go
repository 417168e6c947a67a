package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client provides typed access to the statuspage API for interactive tools.
type Client struct {
	baseURL string
	http    *resty.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = resty.NewWithClient(h).SetBaseURL(c.baseURL)
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{baseURL: strings.TrimRight(trimmed, "/")}
	cli.http = resty.New().SetBaseURL(cli.baseURL).SetTimeout(15 * time.Second)
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents a failure envelope returned by the API.
type APIError struct {
	Status  int
	Kind    string
	Field   string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if e.Field != "" {
		return fmt.Sprintf("api request failed (%d %s): %s: %s", e.Status, e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("api request failed (%d %s): %s", e.Status, e.Kind, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	if ctx == nil {
		ctx = context.Background()
	}
	req := c.http.R().SetContext(ctx)
	if t := strings.TrimSpace(token); t != "" {
		req.SetAuthToken(t)
	}
	return req
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	req := c.request(ctx, token)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}

	var env envelope
	if jsonErr := json.Unmarshal(resp.Body(), &env); jsonErr != nil {
		if resp.IsError() {
			return APIError{Status: resp.StatusCode(), Message: strings.TrimSpace(resp.String())}
		}
		return fmt.Errorf("decode response: %w", jsonErr)
	}
	if resp.IsError() || !env.Success {
		apiErr := APIError{Status: resp.StatusCode()}
		if env.Error != nil {
			apiErr.Kind = env.Error.Kind
			apiErr.Field = env.Error.Field
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if v == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// User reflects API user payloads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenPair includes access and refresh tokens.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// Organization is a tenant as returned by the API.
type Organization struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	NotifyEmail string    `json:"notify_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session captures the payload emitted by signup and login.
type Session struct {
	User         User          `json:"user"`
	Organization *Organization `json:"organization"`
	Tokens       TokenPair     `json:"tokens"`
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "/auth/signup", map[string]string{"email": email, "password": password}, "", &resp)
	return resp, err
}

// Login exchanges credentials for a token pair, optionally scoped to an organization slug.
func (c *Client) Login(ctx context.Context, email, password, organization string) (Session, error) {
	body := map[string]string{
		"email":        email,
		"password":     password,
		"organization": organization,
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// Refresh trades a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "", &pair)
	return pair, err
}

// ListOrganizations returns the caller's organizations.
func (c *Client) ListOrganizations(ctx context.Context, token string) ([]Organization, error) {
	var orgs []Organization
	if err := c.do(ctx, http.MethodGet, "/organizations", nil, token, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

// CreateOrganizationInput describes a new tenant.
type CreateOrganizationInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// CreateOrganization onboards an organization and returns tokens scoped to it.
func (c *Client) CreateOrganization(ctx context.Context, token string, input CreateOrganizationInput) (Organization, TokenPair, error) {
	var resp struct {
		Organization Organization `json:"organization"`
		Tokens       TokenPair    `json:"tokens"`
	}
	if err := c.do(ctx, http.MethodPost, "/organizations", input, token, &resp); err != nil {
		return Organization{}, TokenPair{}, err
	}
	return resp.Organization, resp.Tokens, nil
}

// Service is a monitored component.
type Service struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	MonitorURL  string    `json:"monitor_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateServiceInput describes a new service.
type CreateServiceInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	MonitorURL  string `json:"monitor_url,omitempty"`
}

// ListServices returns the organization's services.
func (c *Client) ListServices(ctx context.Context, token string) ([]Service, error) {
	var services []Service
	if err := c.do(ctx, http.MethodGet, "/services", nil, token, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// CreateService registers a service.
func (c *Client) CreateService(ctx context.Context, token string, input CreateServiceInput) (Service, error) {
	var svc Service
	err := c.do(ctx, http.MethodPost, "/services", input, token, &svc)
	return svc, err
}

// SetServiceStatus overrides a service's status.
func (c *Client) SetServiceStatus(ctx context.Context, token, serviceID, status string) (Service, error) {
	var svc Service
	err := c.do(ctx, http.MethodPut, "/services/"+url.PathEscape(serviceID)+"/status", map[string]string{"status": status}, token, &svc)
	return svc, err
}

// IncidentUpdate is a timeline entry.
type IncidentUpdate struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Incident is an incident with its timeline.
type Incident struct {
	ID         string           `json:"id"`
	ServiceID  string           `json:"service_id"`
	Title      string           `json:"title"`
	Status     string           `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	ResolvedAt *time.Time       `json:"resolved_at"`
	Service    *Service         `json:"service"`
	Updates    []IncidentUpdate `json:"updates"`
}

// CreateIncidentInput opens an incident.
type CreateIncidentInput struct {
	ServiceID   string `json:"service_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ListIncidents returns incidents newest first.
func (c *Client) ListIncidents(ctx context.Context, token string, openOnly bool, limit int) ([]Incident, error) {
	q := url.Values{}
	if openOnly {
		q.Set("open", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/incidents"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var incidents []Incident
	if err := c.do(ctx, http.MethodGet, path, nil, token, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

// CreateIncident opens an incident.
func (c *Client) CreateIncident(ctx context.Context, token string, input CreateIncidentInput) (Incident, error) {
	var incident Incident
	err := c.do(ctx, http.MethodPost, "/incidents", input, token, &incident)
	return incident, err
}

// UpdateIncidentStatus transitions an incident, optionally with a timeline message.
func (c *Client) UpdateIncidentStatus(ctx context.Context, token, incidentID, status, message string) (Incident, error) {
	body := map[string]any{"status": status}
	if strings.TrimSpace(message) != "" {
		body["message"] = message
	}
	var incident Incident
	err := c.do(ctx, http.MethodPatch, "/incidents/"+url.PathEscape(incidentID)+"/status", body, token, &incident)
	return incident, err
}

// AddIncidentUpdate appends a timeline message.
func (c *Client) AddIncidentUpdate(ctx context.Context, token, incidentID, message string) (IncidentUpdate, error) {
	var update IncidentUpdate
	err := c.do(ctx, http.MethodPost, "/incidents/"+url.PathEscape(incidentID)+"/updates", map[string]string{"message": message}, token, &update)
	return update, err
}

// ExportIncidents downloads the incident workbook.
func (c *Client) ExportIncidents(ctx context.Context, token string) ([]byte, error) {
	resp, err := c.request(ctx, token).Get("/incidents/export")
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	if resp.IsError() {
		var env envelope
		apiErr := APIError{Status: resp.StatusCode()}
		if json.Unmarshal(resp.Body(), &env) == nil && env.Error != nil {
			apiErr.Kind, apiErr.Message = env.Error.Kind, env.Error.Message
		}
		return nil, apiErr
	}
	return resp.Body(), nil
}

// PublicService is a service row on the public page.
type PublicService struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// PublicStatus is the unauthenticated status page.
type PublicStatus struct {
	Organization struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"organization"`
	AggregateStatus string          `json:"aggregate_status"`
	Services        []PublicService `json:"services"`
	RecentIncidents []Incident      `json:"recent_incidents"`
}

// PublicStatus fetches an organization's public page.
func (c *Client) PublicStatus(ctx context.Context, slug string) (PublicStatus, error) {
	var page PublicStatus
	err := c.do(ctx, http.MethodGet, "/public/status/"+url.PathEscape(slug), nil, "", &page)
	return page, err
}
