package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"fieldservice/backend/libs/logging"
	"fieldservice/backend/services/field-agent/internal/models"
)

// ErrRejected is wrapped by errors for calls the backend answered with
// success=false.
var ErrRejected = errors.New("clients: request rejected by backend")

// GatewayClient talks to visit-service on behalf of the engine.
type GatewayClient struct {
	base   *BaseClient
	logger *zap.Logger
}

// NewGatewayClient returns client.
func NewGatewayClient(baseURL, token string, httpClient HTTPDoer, logger *zap.Logger) *GatewayClient {
	return &GatewayClient{
		base:   NewBaseClient(baseURL, token, httpClient),
		logger: logging.OrNop(logger),
	}
}

type envelope struct {
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
	StationCount *int             `json:"stationCount,omitempty"`
	Customer     *models.Customer `json:"customer,omitempty"`
}

// CompleteVisitRequest is the body of POST /visits.
type CompleteVisitRequest struct {
	Visit    models.VisitSummary      `json:"visit"`
	Stations []models.StationLogEntry `json:"stations"`
}

// LogBaitStation uploads a single station log entry.
func (c *GatewayClient) LogBaitStation(ctx context.Context, entry models.StationLogEntry) error {
	var resp envelope
	if err := c.call(ctx, http.MethodPost, "/stations/logs", entry, &resp); err != nil {
		return fmt.Errorf("log bait station %d: %w", entry.StationID, err)
	}
	return nil
}

// LogCompleteVisit submits the visit summary with all station entries and
// returns how many entries the backend stored.
func (c *GatewayClient) LogCompleteVisit(ctx context.Context, summary models.VisitSummary, entries []models.StationLogEntry) (int, error) {
	if entries == nil {
		entries = []models.StationLogEntry{}
	}
	var resp envelope
	req := CompleteVisitRequest{Visit: summary, Stations: entries}
	if err := c.call(ctx, http.MethodPost, "/visits", req, &resp); err != nil {
		return 0, fmt.Errorf("log complete visit %s: %w", summary.VisitID, err)
	}
	if resp.StationCount != nil {
		return *resp.StationCount, nil
	}
	return len(entries), nil
}

// UpdateCustomer replaces the customer record including its maps.
func (c *GatewayClient) UpdateCustomer(ctx context.Context, customerID string, customer models.Customer) (models.Customer, error) {
	var resp envelope
	path := "/customers/" + url.PathEscape(customerID)
	if err := c.call(ctx, http.MethodPut, path, customer, &resp); err != nil {
		return models.Customer{}, fmt.Errorf("update customer %s: %w", customerID, err)
	}
	if resp.Customer == nil {
		return customer, nil
	}
	return *resp.Customer, nil
}

// GetCustomers lists customers with their maps.
func (c *GatewayClient) GetCustomers(ctx context.Context) ([]models.Customer, error) {
	var customers []models.Customer
	if err := c.base.DoJSON(ctx, http.MethodGet, "/customers", nil, &customers); err != nil {
		return nil, fmt.Errorf("get customers: %w", err)
	}
	return customers, nil
}

func (c *GatewayClient) call(ctx context.Context, method, path string, in interface{}, out *envelope) error {
	err := c.base.DoJSON(ctx, method, path, in, out)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && out.Error != "" {
			err = fmt.Errorf("%w: %s (status %d)", ErrRejected, out.Error, statusErr.Status)
		}
		c.logger.Warn("gateway call failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	if !out.Success {
		msg := out.Error
		if msg == "" {
			msg = "no reason given"
		}
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return nil
}
