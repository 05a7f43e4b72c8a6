package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cityops/iot-city-monitoring/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var tracer = otel.Tracer("iot-city-monitoring-client")

type MonitoringClient interface {
	GetSensors(ctx context.Context) ([]types.Sensor, error)
	GetSensorByID(ctx context.Context, sensorID uint) (types.Sensor, error)
	QueryReadings(ctx context.Context, sensorID uint, from, to time.Time, offset, limit int) (types.Collection[types.Reading], error)
}

type monitoringClient struct {
	url         string
	httpClient  http.Client
	tokenSource oauth2.TokenSource
}

type Option func(*monitoringClient)

// WithOAuth2ClientCredentials fetches access tokens from the given token
// endpoint and adds them as bearer tokens on all outgoing requests.
func WithOAuth2ClientCredentials(ctx context.Context, tokenURL, clientID, clientSecret string) Option {
	return func(c *monitoringClient) {
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		c.tokenSource = cfg.TokenSource(ctx)
	}
}

// WithStaticToken uses a fixed bearer token on all outgoing requests.
func WithStaticToken(token string) Option {
	return func(c *monitoringClient) {
		c.tokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	}
}

func New(monitoringURL string, opts ...Option) MonitoringClient {
	c := &monitoringClient{
		url: monitoringURL,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *monitoringClient) GetSensors(ctx context.Context) ([]types.Sensor, error) {
	ctx, span := tracer.Start(ctx, "get-sensors")
	defer span.End()

	var sensors []types.Sensor

	err := c.get(ctx, c.url+"/api/v0/sensors", &sensors)
	if err != nil {
		return nil, err
	}

	return sensors, nil
}

func (c *monitoringClient) GetSensorByID(ctx context.Context, sensorID uint) (types.Sensor, error) {
	ctx, span := tracer.Start(ctx, "get-sensor-by-id")
	defer span.End()

	var sensor types.Sensor

	err := c.get(ctx, fmt.Sprintf("%s/api/v0/sensors/%d", c.url, sensorID), &sensor)
	if err != nil {
		return types.Sensor{}, err
	}

	return sensor, nil
}

func (c *monitoringClient) QueryReadings(ctx context.Context, sensorID uint, from, to time.Time, offset, limit int) (types.Collection[types.Reading], error) {
	ctx, span := tracer.Start(ctx, "query-readings")
	defer span.End()

	query := url.Values{}
	if sensorID > 0 {
		query.Set("sensorID", strconv.FormatUint(uint64(sensorID), 10))
	}
	if !from.IsZero() {
		query.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		query.Set("to", to.Format(time.RFC3339))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var result types.Collection[types.Reading]

	err := c.get(ctx, c.url+"/api/v0/readings?"+query.Encode(), &result)
	if err != nil {
		return types.Collection[types.Reading]{}, err
	}

	return result, nil
}

func (c *monitoringClient) get(ctx context.Context, requestURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("failed to fetch access token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	err = json.Unmarshal(body, result)
	if err != nil {
		return fmt.Errorf("failed to unmarshal response body: %w", err)
	}

	return nil
}
