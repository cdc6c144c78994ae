// Package prayer serves daily prayer times looked up by city.
package prayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_assistant_bot/internal/dispatch"
	"tg_assistant_bot/internal/logging"
)

const defaultEndpoint = "https://api.aladhan.com/v1/timingsByCity"

// Times holds one day's prayer schedule.
type Times struct {
	Fajr    string
	Dhuhr   string
	Asr     string
	Maghrib string
	Isha    string
}

// TimesClient looks up today's prayer times for a city.
type TimesClient interface {
	Times(ctx context.Context, city string) (Times, error)
}

// HTTPClient fetches prayer times from an aladhan-compatible API.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient constructs a client. An empty endpoint selects the public
// aladhan API.
func NewHTTPClient(endpoint string, client *http.Client) *HTTPClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{endpoint: endpoint, client: client}
}

// Times fetches today's schedule for the city.
func (c *HTTPClient) Times(ctx context.Context, city string) (Times, error) {
	if strings.TrimSpace(city) == "" {
		return Times{}, errors.New("city is required")
	}

	reqURL := c.endpoint + "?city=" + url.QueryEscape(city)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Times{}, fmt.Errorf("build prayer request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Times{}, fmt.Errorf("fetch prayer times: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Times{}, fmt.Errorf("prayer api responded %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Timings struct {
				Fajr    string `json:"Fajr"`
				Dhuhr   string `json:"Dhuhr"`
				Asr     string `json:"Asr"`
				Maghrib string `json:"Maghrib"`
				Isha    string `json:"Isha"`
			} `json:"timings"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Times{}, fmt.Errorf("decode prayer response: %w", err)
	}

	timings := body.Data.Timings
	if timings.Fajr == "" {
		return Times{}, errors.New("prayer api returned no timings")
	}

	return Times{
		Fajr:    timings.Fajr,
		Dhuhr:   timings.Dhuhr,
		Asr:     timings.Asr,
		Maghrib: timings.Maghrib,
		Isha:    timings.Isha,
	}, nil
}

type textSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Command serves /prayer [city].
type Command struct {
	client      TimesClient
	defaultCity string
	messenger   textSender
	logger      *logrus.Entry
}

// NewCommand constructs the /prayer handler.
func NewCommand(client TimesClient, defaultCity string, messenger textSender, logger *logrus.Entry) (*Command, error) {
	if client == nil {
		return nil, errors.New("times client is required")
	}
	if strings.TrimSpace(defaultCity) == "" {
		return nil, errors.New("default city is required")
	}
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Command{
		client:      client,
		defaultCity: defaultCity,
		messenger:   messenger,
		logger:      logger,
	}, nil
}

func (c *Command) Name() string      { return "prayer" }
func (c *Command) Aliases() []string { return []string{"namaz"} }

// Execute replies with today's prayer times for the requested city, falling
// back to the configured default.
func (c *Command) Execute(ctx context.Context, req dispatch.Request) error {
	city := c.defaultCity
	if len(req.Args) > 0 {
		city = strings.Join(req.Args, " ")
	}

	times, err := c.client.Times(ctx, city)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event": "prayer_lookup_failed",
			"city":  city,
		}).WithError(err).Warn("prayer lookup failed")
		return c.messenger.SendText(ctx, req.ChatID, fmt.Sprintf("Couldn't load prayer times for %s right now.", city))
	}

	text := fmt.Sprintf(
		"Prayer times for %s\n\nFajr: %s\nDhuhr: %s\nAsr: %s\nMaghrib: %s\nIsha: %s",
		city, times.Fajr, times.Dhuhr, times.Asr, times.Maghrib, times.Isha,
	)
	return c.messenger.SendText(ctx, req.ChatID, text)
}
