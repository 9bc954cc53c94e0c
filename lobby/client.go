package lobby

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"lobbyctl/analytics"
)

// DefaultBaseURL and DefaultAuthURL point at the hosted service; tests and
// self-hosted gateways override them through Config.
const (
	DefaultBaseURL  = "https://lobby.services.api.unity.com/v1"
	DefaultAuthURL  = "https://services.api.unity.com/auth/v1/token-exchange"
	DefaultPageSize = 50

	defaultTimeout = 30 * time.Second
	serviceID      = "lobby-manager"
)

// Config controls how the client reaches the lobby service.
type Config struct {
	BaseURL  string
	AuthURL  string
	PageSize int
	Timeout  time.Duration
}

// EventSink receives one analytics event per completed API call. The owning
// context implements it and attaches the lobby count it currently knows.
type EventSink interface {
	RecordEvent(eventType analytics.EventType, details string)
}

type noopSink struct{}

func (noopSink) RecordEvent(analytics.EventType, string) {}

// Client talks to the lobby service REST API. It holds no lobby state of its
// own; accumulation and caching belong to the caller.
type Client struct {
	rest     *resty.Client
	baseURL  string
	authURL  string
	pageSize int
	sink     EventSink
}

// NewClient constructs a client with the provided configuration. A nil sink
// disables analytics.
func NewClient(cfg Config, sink EventSink) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if sink == nil {
		sink = noopSink{}
	}

	return &Client{
		rest:     resty.New().SetTimeout(timeout),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		authURL:  authURL,
		pageSize: pageSize,
		sink:     sink,
	}
}

func (c *Client) authHeaders(session *Session, creds Credentials) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + session.AccessToken,
		"ProjectId":     creds.ProjectID,
		"Service-Id":    serviceID,
	}
}

// QueryLobbies fetches one page of public, joinable lobbies, newest first.
// Pass the previous page's continuation token to resume, or an empty string
// for the first page. An empty token on the returned page means exhaustion.
func (c *Client) QueryLobbies(session *Session, creds Credentials, continuationToken string) (*QueryPage, error) {
	url := c.baseURL + "/query"
	body := queryRequest{
		Filter:            publicJoinableFilter(),
		Order:             createdDescOrder(),
		Count:             c.pageSize,
		ContinuationToken: continuationToken,
	}

	response, err := c.rest.R().
		SetHeaders(c.authHeaders(session, creds)).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to query lobbies")
		c.sink.RecordEvent(analytics.EventRefresh, "Error: "+err.Error())
		return nil, fmt.Errorf("query lobbies: %w", err)
	}
	if !response.IsSuccess() {
		statusErr := newStatusError("query lobbies", response)
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.String(),
		}).Error("Failed to query lobbies")
		c.sink.RecordEvent(analytics.EventRefresh, "Error: "+statusErr.Error())
		return nil, statusErr
	}

	var page QueryPage
	if decodeErr := json.Unmarshal(response.Body(), &page); decodeErr != nil {
		log.WithField("body", response.String()).WithError(decodeErr).Error("Failed to decode lobby query response")
		c.sink.RecordEvent(analytics.EventRefresh, "Error: "+decodeErr.Error())
		return nil, fmt.Errorf("query lobbies: %w", decodeErr)
	}

	log.WithFields(log.Fields{
		"count": len(page.Results),
		"more":  !page.Exhausted(),
	}).Debug("Fetched lobby page")
	c.sink.RecordEvent(analytics.EventRefresh, fmt.Sprintf("Found %d lobbies", len(page.Results)))

	return &page, nil
}

// GetLobby fetches a single lobby by id, including its full player roster.
func (c *Client) GetLobby(session *Session, creds Credentials, lobbyID string) (*Lobby, error) {
	url := c.baseURL + "/" + lobbyID

	response, err := c.rest.R().
		SetHeaders(c.authHeaders(session, creds)).
		Get(url)
	if err != nil {
		log.WithField("url", url).WithError(err).Error("Failed to fetch lobby")
		return nil, fmt.Errorf("get lobby: %w", err)
	}
	if !response.IsSuccess() {
		statusErr := newStatusError("get lobby", response)
		log.WithFields(log.Fields{
			"url":    url,
			"status": response.StatusCode(),
			"body":   response.String(),
		}).Error("Failed to fetch lobby")
		return nil, statusErr
	}

	var lob Lobby
	if decodeErr := json.Unmarshal(response.Body(), &lob); decodeErr != nil {
		log.WithField("body", response.String()).WithError(decodeErr).Error("Failed to decode lobby response")
		return nil, fmt.Errorf("get lobby: %w", decodeErr)
	}

	c.sink.RecordEvent(analytics.EventPlayerLoad, fmt.Sprintf("Loaded %d players", len(lob.Players)))
	return &lob, nil
}

// DeleteLobby deletes a single lobby by id and records one Delete event with
// the outcome.
func (c *Client) DeleteLobby(session *Session, creds Credentials, lobbyID string) error {
	if err := c.deleteOne(session, creds, lobbyID); err != nil {
		log.WithField("lobbyId", lobbyID).WithError(err).Error("Failed to delete lobby")
		c.sink.RecordEvent(analytics.EventDelete, "Failed: "+err.Error())
		return err
	}

	log.WithField("lobbyId", lobbyID).Info("Deleted lobby")
	c.sink.RecordEvent(analytics.EventDelete, "Deleted lobby "+lobbyID)
	return nil
}

// BulkResult summarizes one DeleteAll run.
type BulkResult struct {
	Deleted   int
	Remaining []Lobby
}

// DeleteAll deletes every lobby in the given snapshot, one request at a time;
// request n+1 is not issued until request n has completed. A failed delete
// leaves that lobby in Remaining and iteration moves on to the next. Exactly
// one MassDelete event summarizes the run; per-item failures are not recorded
// as separate events. An empty snapshot is a no-op and records nothing.
func (c *Client) DeleteAll(session *Session, creds Credentials, lobbies []Lobby) BulkResult {
	if len(lobbies) == 0 {
		return BulkResult{}
	}

	var result BulkResult
	for _, lob := range lobbies {
		if err := c.deleteOne(session, creds, lob.ID); err != nil {
			log.WithField("lobbyId", lob.ID).WithError(err).Warn("Skipping lobby that could not be deleted")
			result.Remaining = append(result.Remaining, lob)
			continue
		}
		result.Deleted++
	}

	log.WithFields(log.Fields{
		"deleted": result.Deleted,
		"failed":  len(result.Remaining),
	}).Info("Finished mass delete")
	c.sink.RecordEvent(analytics.EventMassDelete, fmt.Sprintf("Deleted %d lobbies", result.Deleted))

	return result
}

func (c *Client) deleteOne(session *Session, creds Credentials, lobbyID string) error {
	response, err := c.rest.R().
		SetHeaders(c.authHeaders(session, creds)).
		Delete(c.baseURL + "/" + lobbyID)
	if err != nil {
		return fmt.Errorf("delete lobby: %w", err)
	}
	if !response.IsSuccess() {
		return newStatusError("delete lobby", response)
	}
	return nil
}
