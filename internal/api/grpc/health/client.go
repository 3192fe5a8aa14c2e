package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client queries the health service of a running silencer.
type Client struct {
	// conn is the underlying gRPC connection.
	conn *grpc.ClientConn
	// api is the generated health client.
	api healthpb.HealthClient

	// callTimeout bounds each call; zero means no deadline.
	callTimeout time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithCallTimeout sets a timeout for every call.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// errAddressRequired is returned when no address is given.
var errAddressRequired = errors.New("address must be provided")

// Dial creates a client for address. The connection uses insecure transport
// credentials; the listener is meant for localhost.
func Dial(address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial health server: %w", err)
	}

	client := &Client{
		conn: conn,
		api:  healthpb.NewHealthClient(conn),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Check returns the status of one service.
func (c *Client) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check %q: %w", service, err)
	}

	return resp.GetStatus(), nil
}

// CheckAll returns the status of the loop, camera and alarm services.
func (c *Client) CheckAll(ctx context.Context) (map[string]healthpb.HealthCheckResponse_ServingStatus, error) {
	statuses := make(map[string]healthpb.HealthCheckResponse_ServingStatus, len(Services))

	for _, service := range Services {
		status, err := c.Check(ctx, service)
		if err != nil {
			return nil, err
		}

		statuses[service] = status
	}

	return statuses, nil
}

// callContext applies the call timeout when configured.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
