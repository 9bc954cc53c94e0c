package lobby

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lobbyctl/analytics"
)

func TestClient(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

// Ensures the credential checks fire in field order with the exact messages
// the presentation layer shows.
func TestCredentialsValidate(t *testing.T) {
	full := Credentials{KeyID: "k", SecretKey: "s", ProjectID: "p", EnvironmentID: "e"}
	assert.NoError(t, full.Validate(), "A complete credential set should validate")

	cases := []struct {
		name    string
		mutate  func(c *Credentials)
		message string
	}{
		{"missing key id", func(c *Credentials) { c.KeyID = "" }, "Key ID is required"},
		{"missing secret key", func(c *Credentials) { c.SecretKey = "" }, "Secret Key is required"},
		{"missing project id", func(c *Credentials) { c.ProjectID = "" }, "Project ID is required"},
		{"missing environment id", func(c *Credentials) { c.EnvironmentID = "" }, "Environment ID is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creds := full
			tc.mutate(&creds)
			err := creds.Validate()
			require.Error(t, err, "A missing field must fail validation")
			assert.Equal(t, tc.message, err.Error(), "Validation message must name the missing field")
		})
	}
}

func TestNewFilterRejectsUnknownOp(t *testing.T) {
	_, err := NewFilter("AvailableSlots", Op("LIKE"), "0")
	assert.Error(t, err, "An operator outside the service's accepted set must be rejected at construction")

	filter, err := NewFilter("AvailableSlots", OpGT, "0")
	require.NoError(t, err, "GT is a valid operator")
	assert.Equal(t, Filter{Field: "AvailableSlots", Op: OpGT, Value: "0"}, filter)
}

// recordingSink captures the analytics events a client emits.
type recordingSink struct {
	events []recordedEvent
}

type recordedEvent struct {
	eventType analytics.EventType
	details   string
}

func (s *recordingSink) RecordEvent(eventType analytics.EventType, details string) {
	s.events = append(s.events, recordedEvent{eventType, details})
}

func (s *recordingSink) last() recordedEvent {
	return s.events[len(s.events)-1]
}

func (s *recordingSink) ofType(eventType analytics.EventType) []recordedEvent {
	var out []recordedEvent
	for _, e := range s.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Test suite running the client against a fake lobby service.
type ClientTestSuite struct {
	suite.Suite

	server  *httptest.Server
	client  *Client
	sink    *recordingSink
	creds   Credentials
	session *Session

	// fake service state
	pages       map[string][]Lobby // page served for an incoming continuation token
	cursors     map[string]string  // continuation token returned for an incoming one
	details     map[string]Lobby   // lobbies served by GET /v1/{lobbyId}
	failDeletes map[string]int     // lobby id -> HTTP status to fail the DELETE with
	deleted     []string
	lastQuery   queryRequest
	// non-zero forces /v1/query to fail with this status
	queryStatus int
}

func (ts *ClientTestSuite) SetupTest() {
	ts.sink = &recordingSink{}
	ts.pages = make(map[string][]Lobby)
	ts.cursors = make(map[string]string)
	ts.details = make(map[string]Lobby)
	ts.failDeletes = make(map[string]int)
	ts.deleted = nil
	ts.lastQuery = queryRequest{}
	ts.queryStatus = 0

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/auth/v1/token-exchange", ts.handleTokenExchange).Methods("POST")
	router.HandleFunc("/v1/query", ts.handleQuery).Methods("POST")
	router.HandleFunc("/v1/{lobbyId}", ts.handleGet).Methods("GET")
	router.HandleFunc("/v1/{lobbyId}", ts.handleDelete).Methods("DELETE")
	ts.server = httptest.NewServer(router)

	ts.client = NewClient(Config{
		BaseURL: ts.server.URL + "/v1",
		AuthURL: ts.server.URL + "/auth/v1/token-exchange",
	}, ts.sink)
	ts.creds = Credentials{KeyID: "key", SecretKey: "secret", ProjectID: "proj", EnvironmentID: "test"}
	ts.session = &Session{AccessToken: "session-token", ObtainedAt: time.Now()}
}

func (ts *ClientTestSuite) TearDownTest() {
	ts.server.Close()
}

// The fake token-exchange endpoint mints an HMAC-signed token the same way a
// real auth backend would.
func (ts *ClientTestSuite) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("key:secret"))
	if r.Header.Get("Authorization") != expected {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Invalid credentials"}`))
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &jwt.StandardClaims{
		Subject:   r.URL.Query().Get("projectId"),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("fake-service-secret"))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accessToken": signed,
		"expiresIn":   3600,
	})
}

func (ts *ClientTestSuite) checkLobbyHeaders(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer session-token" ||
		r.Header.Get("ProjectId") != "proj" ||
		r.Header.Get("Service-Id") != "lobby-manager" {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"Missing or invalid headers"}`))
		return false
	}
	return true
}

func (ts *ClientTestSuite) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !ts.checkLobbyHeaders(w, r) {
		return
	}
	if ts.queryStatus != 0 {
		w.WriteHeader(ts.queryStatus)
		w.Write([]byte("quota exceeded"))
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ts.lastQuery = req

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QueryPage{
		Results:           ts.pages[req.ContinuationToken],
		ContinuationToken: ts.cursors[req.ContinuationToken],
	})
}

func (ts *ClientTestSuite) handleGet(w http.ResponseWriter, r *http.Request) {
	if !ts.checkLobbyHeaders(w, r) {
		return
	}

	lob, exists := ts.details[mux.Vars(r)["lobbyId"]]
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"lobby not found"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lob)
}

func (ts *ClientTestSuite) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !ts.checkLobbyHeaders(w, r) {
		return
	}

	lobbyID := mux.Vars(r)["lobbyId"]
	if status, failing := ts.failDeletes[lobbyID]; failing {
		w.WriteHeader(status)
		w.Write([]byte("delete refused"))
		return
	}

	ts.deleted = append(ts.deleted, lobbyID)
	w.WriteHeader(http.StatusNoContent)
}

func makeLobby(name string, maxPlayers, availableSlots int) Lobby {
	return Lobby{
		ID:             uuid.NewString(),
		LobbyCode:      uuid.NewString()[:6],
		Name:           name,
		MaxPlayers:     maxPlayers,
		AvailableSlots: availableSlots,
		HostID:         uuid.NewString(),
		Created:        time.Now().UTC().Format(time.RFC3339),
	}
}

func makeLobbies(count, maxPlayers, availableSlots int) []Lobby {
	out := make([]Lobby, count)
	for i := range out {
		out[i] = makeLobby(fmt.Sprintf("lobby-%d", i), maxPlayers, availableSlots)
	}
	return out
}

func (ts *ClientTestSuite) TestAuthenticate() {
	session, err := ts.client.Authenticate(ts.creds)
	require.NoError(ts.T(), err, "Valid credentials should authenticate")

	assert.NotEmpty(ts.T(), session.AccessToken, "Session must carry the issued token")
	assert.Equal(ts.T(), 3600, session.ExpiresIn, "Session must carry the advertised expiry")
	assert.False(ts.T(), session.ObtainedAt.IsZero(), "Session must record when it was obtained")

	require.Len(ts.T(), ts.sink.events, 1, "Exactly one Authentication event must be recorded")
	assert.Equal(ts.T(), analytics.EventAuthentication, ts.sink.last().eventType)
	assert.Equal(ts.T(), "Success", ts.sink.last().details)
}

func (ts *ClientTestSuite) TestAuthenticateBadCredentials() {
	bad := ts.creds
	bad.SecretKey = "wrong"

	_, err := ts.client.Authenticate(bad)
	require.Error(ts.T(), err, "Rejected credentials must surface an error")

	var statusErr *StatusError
	require.ErrorAs(ts.T(), err, &statusErr, "A non-2xx auth response must be a StatusError")
	assert.Equal(ts.T(), http.StatusUnauthorized, statusErr.Code)
	assert.Contains(ts.T(), statusErr.Body, "Invalid credentials", "The raw body must be preserved")

	require.Len(ts.T(), ts.sink.events, 1, "A failed attempt still records one Authentication event")
	assert.Equal(ts.T(), analytics.EventAuthentication, ts.sink.last().eventType)
	assert.Contains(ts.T(), ts.sink.last().details, "Failed: ", "Failure details must be prefixed")
}

func (ts *ClientTestSuite) TestQuerySendsFixedFilterAndOrder() {
	ts.pages[""] = makeLobbies(2, 4, 2)

	_, err := ts.client.QueryLobbies(ts.session, ts.creds, "")
	require.NoError(ts.T(), err)

	assert.Equal(ts.T(), []Filter{
		{Field: "AvailableSlots", Op: OpGT, Value: "0"},
		{Field: "HasPassword", Op: OpEQ, Value: "false"},
	}, ts.lastQuery.Filter, "The public-joinable filter is fixed policy, not caller input")
	assert.Equal(ts.T(), []Order{{Field: "Created", Asc: false}}, ts.lastQuery.Order, "Ordering is newest first")
	assert.Equal(ts.T(), DefaultPageSize, ts.lastQuery.Count, "Page size defaults to 50")
	assert.Empty(ts.T(), ts.lastQuery.ContinuationToken, "A fresh query starts without a cursor")
}

func (ts *ClientTestSuite) TestQueryPagination() {
	ts.pages[""] = makeLobbies(50, 8, 4)
	ts.cursors[""] = "abc"
	ts.pages["abc"] = makeLobbies(10, 8, 4)

	first, err := ts.client.QueryLobbies(ts.session, ts.creds, "")
	require.NoError(ts.T(), err)
	assert.Len(ts.T(), first.Results, 50)
	assert.Equal(ts.T(), "abc", first.ContinuationToken)
	assert.False(ts.T(), first.Exhausted(), "A non-empty token means more pages exist")

	second, err := ts.client.QueryLobbies(ts.session, ts.creds, first.ContinuationToken)
	require.NoError(ts.T(), err)
	assert.Len(ts.T(), second.Results, 10)
	assert.True(ts.T(), second.Exhausted(), "An empty token signals exhaustion")

	assert.Equal(ts.T(), "abc", ts.lastQuery.ContinuationToken, "The second request must resume from the returned cursor")

	refreshes := ts.sink.ofType(analytics.EventRefresh)
	require.Len(ts.T(), refreshes, 2, "Each page records one Refresh event")
	assert.Equal(ts.T(), "Found 50 lobbies", refreshes[0].details, "The event counts the page, not the accumulated total")
	assert.Equal(ts.T(), "Found 10 lobbies", refreshes[1].details)
}

func (ts *ClientTestSuite) TestQueryErrorDetail() {
	ts.queryStatus = http.StatusForbidden

	_, err := ts.client.QueryLobbies(ts.session, ts.creds, "")
	require.Error(ts.T(), err)

	var statusErr *StatusError
	require.ErrorAs(ts.T(), err, &statusErr)
	assert.Equal(ts.T(), http.StatusForbidden, statusErr.Code)
	assert.Equal(ts.T(), "Forbidden", statusErr.Reason)
	assert.Equal(ts.T(), "quota exceeded", statusErr.Body)
	assert.Equal(ts.T(), "HTTP 403 (Forbidden): quota exceeded", err.Error(), "The error must surface status, reason and raw body")

	require.Len(ts.T(), ts.sink.events, 1)
	assert.Equal(ts.T(), analytics.EventRefresh, ts.sink.last().eventType)
	assert.Equal(ts.T(), "Error: HTTP 403 (Forbidden): quota exceeded", ts.sink.last().details)
}

func (ts *ClientTestSuite) TestGetLobby() {
	lob := makeLobby("battle-1", 8, 6)
	lob.Players = []Player{
		{ID: uuid.NewString(), Profile: PlayerProfile{Name: "alice"}},
		{ID: uuid.NewString(), Profile: PlayerProfile{Name: "bob"}},
	}
	ts.details[lob.ID] = lob

	fetched, err := ts.client.GetLobby(ts.session, ts.creds, lob.ID)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), lob.ID, fetched.ID)
	require.Len(ts.T(), fetched.Players, 2, "The full roster must be decoded")
	assert.Equal(ts.T(), "alice", fetched.Players[0].Profile.Name)
	assert.Equal(ts.T(), 2, fetched.PlayerCount(), "Player count is derived from capacity")

	require.Len(ts.T(), ts.sink.events, 1)
	assert.Equal(ts.T(), analytics.EventPlayerLoad, ts.sink.last().eventType)
	assert.Equal(ts.T(), "Loaded 2 players", ts.sink.last().details)
}

func (ts *ClientTestSuite) TestGetLobbyNotFound() {
	_, err := ts.client.GetLobby(ts.session, ts.creds, uuid.NewString())
	require.Error(ts.T(), err)

	var statusErr *StatusError
	require.ErrorAs(ts.T(), err, &statusErr)
	assert.Equal(ts.T(), http.StatusNotFound, statusErr.Code)
	assert.Empty(ts.T(), ts.sink.ofType(analytics.EventPlayerLoad), "A failed fetch records no PlayerLoad event")
}

func (ts *ClientTestSuite) TestDeleteLobby() {
	lob := makeLobby("doomed", 4, 4)

	err := ts.client.DeleteLobby(ts.session, ts.creds, lob.ID)
	require.NoError(ts.T(), err)
	assert.Equal(ts.T(), []string{lob.ID}, ts.deleted, "The DELETE must reach the service")

	require.Len(ts.T(), ts.sink.events, 1)
	assert.Equal(ts.T(), analytics.EventDelete, ts.sink.last().eventType)
	assert.Equal(ts.T(), "Deleted lobby "+lob.ID, ts.sink.last().details)
}

func (ts *ClientTestSuite) TestDeleteLobbyFailure() {
	lob := makeLobby("stubborn", 4, 4)
	ts.failDeletes[lob.ID] = http.StatusInternalServerError

	err := ts.client.DeleteLobby(ts.session, ts.creds, lob.ID)
	require.Error(ts.T(), err)
	assert.Empty(ts.T(), ts.deleted, "A failed delete must not be counted as performed")

	require.Len(ts.T(), ts.sink.events, 1)
	assert.Equal(ts.T(), analytics.EventDelete, ts.sink.last().eventType)
	assert.Contains(ts.T(), ts.sink.last().details, "Failed: ", "Failure details must be prefixed")
}

func (ts *ClientTestSuite) TestDeleteAllIsolatesFailures() {
	lobbies := makeLobbies(3, 4, 4)
	failing := lobbies[1]
	ts.failDeletes[failing.ID] = http.StatusInternalServerError

	result := ts.client.DeleteAll(ts.session, ts.creds, lobbies)

	assert.Equal(ts.T(), 2, result.Deleted, "Both healthy lobbies must be deleted despite the failure in between")
	require.Len(ts.T(), result.Remaining, 1, "Only the failed lobby remains")
	assert.Equal(ts.T(), failing.ID, result.Remaining[0].ID)
	assert.Equal(ts.T(), []string{lobbies[0].ID, lobbies[2].ID}, ts.deleted, "Deletions must happen sequentially in input order")

	massDeletes := ts.sink.ofType(analytics.EventMassDelete)
	require.Len(ts.T(), massDeletes, 1, "Exactly one MassDelete event summarizes the run")
	assert.Equal(ts.T(), "Deleted 2 lobbies", massDeletes[0].details)
	assert.Empty(ts.T(), ts.sink.ofType(analytics.EventDelete), "Per-item outcomes must not be logged as Delete events")
}

func (ts *ClientTestSuite) TestDeleteAllEmptyInput() {
	result := ts.client.DeleteAll(ts.session, ts.creds, nil)

	assert.Equal(ts.T(), BulkResult{}, result, "An empty snapshot is a no-op")
	assert.Empty(ts.T(), ts.sink.events, "A no-op run records no event")
}
