package rules

import "github.com/roach88/narrator/internal/domain"

// LobbyContext answers the name and identity lookups rules need while
// rendering. It is built once per lobby per processing batch.
type LobbyContext struct {
	lobbyID string
	name    string
	names   map[string]string
	users   map[string]string
}

// NewLobbyContext indexes a directory entry.
func NewLobbyContext(lobby domain.Lobby) *LobbyContext {
	c := &LobbyContext{
		lobbyID: lobby.ID,
		name:    lobby.Name,
		names:   make(map[string]string, len(lobby.Members)),
		users:   make(map[string]string, len(lobby.Members)),
	}
	for _, m := range lobby.Members {
		if m.DisplayName != "" {
			c.names[m.PlayerID] = m.DisplayName
		}
		if m.UserID != "" {
			c.users[m.PlayerID] = m.UserID
		}
	}
	return c
}

// LobbyID returns the lobby this context describes.
func (c *LobbyContext) LobbyID() string { return c.lobbyID }

// Name returns the player's display name, or "Someone" if unknown.
func (c *LobbyContext) Name(playerID string) string {
	if n, ok := c.names[playerID]; ok {
		return n
	}
	return "Someone"
}

// UserID returns the player's linkable push identity, or "".
func (c *LobbyContext) UserID(playerID string) string {
	return c.users[playerID]
}

// LobbyName returns the lobby's name for use inside a sentence.
func (c *LobbyContext) LobbyName() string {
	if c.name == "" {
		return "the lobby"
	}
	return c.name
}

// Title returns the push notification title for the lobby.
func (c *LobbyContext) Title() string {
	if c.name == "" {
		return "Lobby update"
	}
	return c.name
}
