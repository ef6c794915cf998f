// Package client is a small HTTP client for the visits service.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/go-querystring/query"
)

type Visit struct {
	ID               string     `json:"id"`
	CustomerID       string     `json:"customerId"`
	SiteID           string     `json:"siteId"`
	TechnicianID     string     `json:"technicianId"`
	State            string     `json:"state"`
	Priority         string     `json:"priority"`
	Purpose          string     `json:"purpose,omitempty"`
	ScheduledStartAt time.Time  `json:"scheduledStartAt"`
	ScheduledEndAt   time.Time  `json:"scheduledEndAt"`
	NotesPlanned     string     `json:"notesPlanned,omitempty"`
	CheckInAt        *time.Time `json:"checkInAt,omitempty"`
	CheckOutAt       *time.Time `json:"checkOutAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type VisitPage struct {
	Items []Visit `json:"items"`
	Page  int     `json:"page"`
	Size  int     `json:"size"`
	Total int64   `json:"total"`
}

type Event struct {
	ID        string    `json:"id"`
	VisitID   string    `json:"visitId"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actorId,omitempty"`
	GeoLat    *float64  `json:"geoLat,omitempty"`
	GeoLng    *float64  `json:"geoLng,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Note struct {
	ID         string    `json:"id"`
	VisitID    string    `json:"visitId"`
	AuthorID   string    `json:"authorId,omitempty"`
	Visibility string    `json:"visibility"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Email struct {
	ID           string    `json:"id"`
	VisitID      string    `json:"visitId"`
	ToEmail      string    `json:"toEmail"`
	Subject      string    `json:"subject"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CreateVisit struct {
	CustomerID       string    `json:"customerId"`
	SiteID           string    `json:"siteId"`
	TechnicianID     string    `json:"technicianId"`
	ScheduledStartAt time.Time `json:"scheduledStartAt"`
	ScheduledEndAt   time.Time `json:"scheduledEndAt"`
	Priority         string    `json:"priority,omitempty"`
	Purpose          string    `json:"purpose,omitempty"`
	NotesPlanned     string    `json:"notesPlanned,omitempty"`
}

// UpdateVisit is a partial update. Nil fields are left untouched.
type UpdateVisit struct {
	ScheduledStartAt *time.Time `json:"scheduledStartAt,omitempty"`
	ScheduledEndAt   *time.Time `json:"scheduledEndAt,omitempty"`
	TechnicianID     *string    `json:"technicianId,omitempty"`
	Priority         *string    `json:"priority,omitempty"`
	Purpose          *string    `json:"purpose,omitempty"`
	NotesPlanned     *string    `json:"notesPlanned,omitempty"`
}

type CheckIn struct {
	ActorID string     `json:"actorId"`
	When    *time.Time `json:"when,omitempty"`
	Lat     *float64   `json:"lat,omitempty"`
	Lng     *float64   `json:"lng,omitempty"`
}

type CheckOut struct {
	ActorID     string     `json:"actorId"`
	When        *time.Time `json:"when,omitempty"`
	Lat         *float64   `json:"lat,omitempty"`
	Lng         *float64   `json:"lng,omitempty"`
	WorkSummary string     `json:"workSummary,omitempty"`
}

type AddNote struct {
	AuthorID   string `json:"authorId"`
	Visibility string `json:"visibility,omitempty"`
	Body       string `json:"body"`
}

// ListOptions maps onto the GET /visits query string.
type ListOptions struct {
	CustomerID   string     `url:"customerId,omitempty"`
	TechnicianID string     `url:"technicianId,omitempty"`
	State        string     `url:"state,omitempty"`
	From         *time.Time `url:"from,omitempty"`
	To           *time.Time `url:"to,omitempty"`
	Page         int        `url:"page,omitempty"`
	Size         int        `url:"size,omitempty"`
}

type todayOptions struct {
	TechnicianID string `url:"technicianId"`
	DateISO      string `url:"dateIso,omitempty"`
}

type actorOptions struct {
	ActorID string `url:"actorId,omitempty"`
}

// APIError is a non-2xx reply from the service.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("visits api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("visits api: %s (%s)", e.Message, e.Code)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	http *resty.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetError(&APIError{}),
	}
}

func (c *Client) do(ctx context.Context, method, path string, params any, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		values, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		req.SetQueryParamsFromValues(values)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr, _ := resp.Error().(*APIError)
		if apiErr == nil {
			apiErr = &APIError{}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

func visitPath(id string, suffix string) string {
	return "/visits/" + url.PathEscape(id) + suffix
}

func (c *Client) Create(ctx context.Context, in CreateVisit) (*Visit, error) {
	var out Visit
	if err := c.do(ctx, http.MethodPost, "/visits", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*Visit, error) {
	var out Visit
	if err := c.do(ctx, http.MethodGet, visitPath(id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, id string, in UpdateVisit) (*Visit, error) {
	var out Visit
	if err := c.do(ctx, http.MethodPatch, visitPath(id, ""), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) List(ctx context.Context, opts ListOptions) (*VisitPage, error) {
	var out VisitPage
	if err := c.do(ctx, http.MethodGet, "/visits", opts, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Today lists a technician's visits for the UTC day of date. A zero date
// lets the server pick today.
func (c *Client) Today(ctx context.Context, technicianID string, date time.Time) ([]Visit, error) {
	opts := todayOptions{TechnicianID: technicianID}
	if !date.IsZero() {
		opts.DateISO = date.UTC().Format("2006-01-02")
	}
	var out []Visit
	if err := c.do(ctx, http.MethodGet, "/visits/me/today", opts, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CheckIn(ctx context.Context, id string, in CheckIn) (*Visit, error) {
	var out Visit
	if err := c.do(ctx, http.MethodPost, visitPath(id, "/check-in"), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CheckOut(ctx context.Context, id string, in CheckOut) (*Visit, error) {
	var out Visit
	if err := c.do(ctx, http.MethodPost, visitPath(id, "/check-out"), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Cancel(ctx context.Context, id, actorID string) error {
	return c.do(ctx, http.MethodPost, visitPath(id, "/cancel"), actorOptions{ActorID: actorID}, nil, nil)
}

func (c *Client) NoShow(ctx context.Context, id, actorID string) error {
	return c.do(ctx, http.MethodPost, visitPath(id, "/no-show"), actorOptions{ActorID: actorID}, nil, nil)
}

func (c *Client) Events(ctx context.Context, id string) ([]Event, error) {
	var out []Event
	if err := c.do(ctx, http.MethodGet, visitPath(id, "/events"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Notes(ctx context.Context, id string) ([]Note, error) {
	var out []Note
	if err := c.do(ctx, http.MethodGet, visitPath(id, "/notes"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddNote(ctx context.Context, id string, in AddNote) ([]Note, error) {
	var out []Note
	if err := c.do(ctx, http.MethodPost, visitPath(id, "/notes"), nil, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Emails(ctx context.Context, id string) ([]Email, error) {
	var out []Email
	if err := c.do(ctx, http.MethodGet, visitPath(id, "/emails"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
