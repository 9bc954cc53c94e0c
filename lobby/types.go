package lobby

// Wire types for the lobby service REST API. Field names and JSON tags follow
// the service's documented contract.

// Lobby is a joinable multiplayer session resource managed by the remote
// service, with a slot capacity and player roster.
type Lobby struct {
	ID             string                `json:"id"`
	LobbyCode      string                `json:"lobbyCode"`
	Upid           string                `json:"upid"`
	EnvironmentID  string                `json:"environmentId"`
	Name           string                `json:"name"`
	MaxPlayers     int                   `json:"maxPlayers"`
	AvailableSlots int                   `json:"availableSlots"`
	IsPrivate      bool                  `json:"isPrivate"`
	IsLocked       bool                  `json:"isLocked"`
	HasPassword    bool                  `json:"hasPassword"`
	Players        []Player              `json:"players"`
	Data           map[string]DataObject `json:"data"`
	HostID         string                `json:"hostId"`
	Created        string                `json:"created"`
	LastUpdated    string                `json:"lastUpdated"`
	Version        int                   `json:"version"`
}

// PlayerCount is derived from capacity; the service does not report it as a
// separate field.
func (l *Lobby) PlayerCount() int {
	return l.MaxPlayers - l.AvailableSlots
}

// Player is one member of a lobby's roster.
type Player struct {
	ID             string                      `json:"id"`
	Profile        PlayerProfile               `json:"profile"`
	ConnectionInfo string                      `json:"connectionInfo"`
	Data           map[string]PlayerDataObject `json:"data"`
	AllocationID   string                      `json:"allocationId"`
	Joined         string                      `json:"joined"`
	LastUpdated    string                      `json:"lastUpdated"`
}

type PlayerProfile struct {
	Name string `json:"name"`
}

// DataObject is opaque key-scoped metadata attached to a lobby.
type DataObject struct {
	Value      string `json:"value"`
	Visibility string `json:"visibility"`
	Index      string `json:"index"`
}

// PlayerDataObject is opaque key-scoped metadata attached to a player.
type PlayerDataObject struct {
	Value      string `json:"value"`
	Visibility string `json:"visibility"`
}

// QueryPage is one page of a paginated list query. An empty ContinuationToken
// means the result set is exhausted.
type QueryPage struct {
	Results           []Lobby `json:"results"`
	ContinuationToken string  `json:"continuationToken"`
}

// Exhausted reports whether there are no further pages to request.
func (p *QueryPage) Exhausted() bool {
	return p.ContinuationToken == ""
}
