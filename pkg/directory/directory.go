package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrNotFound = errors.New("directory entry not found")

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Technician struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Config struct {
	CustomersURL   string
	TechniciansURL string
	Timeout        time.Duration
	Retries        int
}

// Client looks up customers and technicians in the CRUD services that own
// them. Both services expose GET /{collection}/{id}.
type Client struct {
	customers   *resty.Client
	technicians *resty.Client
}

func newResty(baseURL string, cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")
}

func New(cfg Config) *Client {
	return &Client{
		customers:   newResty(cfg.CustomersURL, cfg),
		technicians: newResty(cfg.TechniciansURL, cfg),
	}
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var out Customer
	if err := get(ctx, c.customers, "/customers/{id}", id, &out); err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	return &out, nil
}

func (c *Client) GetTechnician(ctx context.Context, id string) (*Technician, error) {
	var out Technician
	if err := get(ctx, c.technicians, "/technicians/{id}", id, &out); err != nil {
		return nil, fmt.Errorf("get technician %s: %w", id, err)
	}
	return &out, nil
}

func get(ctx context.Context, client *resty.Client, path, id string, out any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(out).
		Get(path)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNotFound
	case resp.IsError():
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return nil
}
