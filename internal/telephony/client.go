package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/voyxa/voice-webhook/internal/config"
)

// ErrNoCallerID is returned when no outbound number is configured
var ErrNoCallerID = errors.New("TWILIO_PHONE_NUMBER is not set")

// callAPI is the subset of the Twilio 2010 API the client uses
type callAPI interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
	FetchAccount(sid string) (*twilioApi.ApiV2010Account, error)
}

// Client places outbound calls and checks Twilio credentials
type Client struct {
	api        callAPI
	accountSID string
	from       string
	logger     zerolog.Logger
}

// NewClient creates a Twilio client from config
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return newClient(rest.Api, cfg.TwilioAccountSID, cfg.TwilioPhoneNumber, logger)
}

func newClient(api callAPI, accountSID, from string, logger zerolog.Logger) *Client {
	return &Client{
		api:        api,
		accountSID: accountSID,
		from:       from,
		logger:     logger.With().Str("component", "twilio").Logger(),
	}
}

// PlaceCall dials to and points the call's webhook at webhookURL. It returns
// the new Call SID.
func (c *Client) PlaceCall(ctx context.Context, to, webhookURL string) (string, error) {
	if c.from == "" {
		return "", ErrNoCallerID
	}
	if to == "" {
		return "", errors.New("destination number is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetUrl(webhookURL)
	params.SetMethod("POST")

	resp, err := c.api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("creating call: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("twilio returned no call sid")
	}

	c.logger.Info().Str("call_sid", *resp.Sid).Str("to", to).Str("url", webhookURL).Msg("Outbound call created")
	return *resp.Sid, nil
}

// Check verifies the credentials by fetching the account
func (c *Client) Check(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	account, err := c.api.FetchAccount(c.accountSID)
	if err != nil {
		return false, fmt.Errorf("fetching twilio account: %w", err)
	}
	if account != nil && account.Status != nil && *account.Status != "active" {
		return false, fmt.Errorf("twilio account is %s", *account.Status)
	}
	return true, nil
}
