package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SMSAPIError é devolvido quando o provedor responde com status >= 300.
type SMSAPIError struct {
	StatusCode int
	Body       string
}

func (e SMSAPIError) Error() string {
	return fmt.Sprintf("sms api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SMSClient é um cliente fino para a Messages API (compatível com Twilio).
type SMSClient struct {
	httpClient *resty.Client
	accountSID string
	from       string
	logger     *zap.Logger
}

func NewSMSClient(baseURL, accountSID, authToken, from string, logger *zap.Logger) *SMSClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetBasicAuth(accountSID, authToken).
		SetHeader("Accept", "application/json")

	return &SMSClient{
		httpClient: client,
		accountSID: accountSID,
		from:       from,
		logger:     logger,
	}
}

type smsSendResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// SendText envia um SMS e devolve o id do provedor.
func (c *SMSClient) SendText(ctx context.Context, to string, text string) (string, error) {
	if strings.TrimSpace(c.accountSID) == "" || strings.TrimSpace(c.from) == "" {
		return "", fmt.Errorf("sms account_sid or from_number not set")
	}
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("sms recipient is required")
	}

	var out smsSendResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   to,
			"From": c.from,
			"Body": text,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID))
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	if resp.StatusCode() >= 300 {
		return "", SMSAPIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	c.logger.Debug("sms sent", zap.String("to", to), zap.String("sid", out.SID), zap.String("status", out.Status))
	return out.SID, nil
}
