package bot

import "github.com/Enriquefft/tgloop/internal/telegram"

// Identity is the bot account the runtime acts as.
type Identity struct {
	ID        telegram.UserID `json:"id"`
	Username  string          `json:"username,omitempty"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name,omitempty"`
	IsBot     bool            `json:"is_bot"`
}

// DisplayName returns "First Last", or the username when no name is set.
func (id Identity) DisplayName() string {
	name := id.FirstName
	if id.LastName != "" {
		if name != "" {
			name += " "
		}
		name += id.LastName
	}
	if name == "" {
		return id.Username
	}
	return name
}

// Mention returns "@username", or "" for accounts without one.
func (id Identity) Mention() string {
	if id.Username == "" {
		return ""
	}
	return "@" + id.Username
}
