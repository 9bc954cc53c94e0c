package lobby

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"lobbyctl/analytics"
)

// Credentials is a service-account credential set. All four fields are
// required before any network call is attempted.
type Credentials struct {
	KeyID         string
	SecretKey     string
	ProjectID     string
	EnvironmentID string
}

// Validate checks that every credential field is present. It runs before any
// request is built, so a missing field never reaches the network layer.
func (c Credentials) Validate() error {
	if c.KeyID == "" {
		return errors.New("Key ID is required")
	}
	if c.SecretKey == "" {
		return errors.New("Secret Key is required")
	}
	if c.ProjectID == "" {
		return errors.New("Project ID is required")
	}
	if c.EnvironmentID == "" {
		return errors.New("Environment ID is required")
	}
	return nil
}

// Session is a bearer token obtained from the token-exchange endpoint. There
// is no refresh flow; a rejected token means the operator authenticates again.
type Session struct {
	AccessToken string
	ExpiresIn   int
	ObtainedAt  time.Time
}

type tokenExchangeRequest struct {
	Scopes []string `json:"scopes"`
}

type tokenExchangeResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// Authenticate exchanges the service-account credentials for a bearer token
// scoped to the project and environment. One Authentication event is recorded
// whatever the outcome. There is no retry; the caller decides whether to
// re-invoke.
func (c *Client) Authenticate(creds Credentials) (*Session, error) {
	basicAuth := base64.StdEncoding.EncodeToString([]byte(creds.KeyID + ":" + creds.SecretKey))

	response, err := c.rest.R().
		SetHeader("Authorization", "Basic "+basicAuth).
		SetHeader("Content-Type", "application/json").
		SetQueryParams(map[string]string{
			"projectId":     creds.ProjectID,
			"environmentId": creds.EnvironmentID,
		}).
		SetBody(tokenExchangeRequest{Scopes: []string{}}).
		Post(c.authURL)
	if err != nil {
		log.WithField("url", c.authURL).WithError(err).Error("Token exchange request failed")
		c.sink.RecordEvent(analytics.EventAuthentication, "Failed: "+err.Error())
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if !response.IsSuccess() {
		statusErr := newStatusError("token exchange", response)
		log.WithFields(log.Fields{
			"url":    c.authURL,
			"status": response.StatusCode(),
			"body":   response.String(),
		}).Error("Token exchange rejected")
		c.sink.RecordEvent(analytics.EventAuthentication, "Failed: "+statusErr.Error())
		return nil, statusErr
	}

	var token tokenExchangeResponse
	if decodeErr := json.Unmarshal(response.Body(), &token); decodeErr != nil {
		log.WithField("body", response.String()).WithError(decodeErr).Error("Failed to decode token exchange response")
		c.sink.RecordEvent(analytics.EventAuthentication, "Failed: "+decodeErr.Error())
		return nil, fmt.Errorf("token exchange: %w", decodeErr)
	}

	log.WithField("expiresIn", token.ExpiresIn).Info("Authenticated with lobby service")
	c.sink.RecordEvent(analytics.EventAuthentication, "Success")

	return &Session{
		AccessToken: token.AccessToken,
		ExpiresIn:   token.ExpiresIn,
		ObtainedAt:  time.Now(),
	}, nil
}
