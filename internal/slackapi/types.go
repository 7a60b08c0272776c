package slackapi

import "strings"

type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsMember   bool   `json:"is_member"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
}

type UserProfile struct {
	RealName    string `json:"real_name"`
	DisplayName string `json:"display_name"`
}

type User struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	RealName string      `json:"real_name"`
	Deleted  bool        `json:"deleted"`
	IsBot    bool        `json:"is_bot"`
	Profile  UserProfile `json:"profile"`
}

// DisplayName returns the name a reader would recognise, falling back to the
// account handle and finally the raw id.
func (u User) DisplayName() string {
	for _, candidate := range []string{u.Profile.RealName, u.RealName, u.Profile.DisplayName, u.Name} {
		if name := strings.TrimSpace(candidate); name != "" {
			return name
		}
	}
	return u.ID
}

type Reaction struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

type Message struct {
	Type       string     `json:"type"`
	Subtype    string     `json:"subtype,omitempty"`
	User       string     `json:"user,omitempty"`
	BotID      string     `json:"bot_id,omitempty"`
	Username   string     `json:"username,omitempty"`
	Text       string     `json:"text"`
	TS         string     `json:"ts"`
	ThreadTS   string     `json:"thread_ts,omitempty"`
	ReplyCount int        `json:"reply_count,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
}

type ResponseMetadata struct {
	NextCursor string `json:"next_cursor"`
}

type ChannelPage struct {
	Channels         []Channel        `json:"channels"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

// HasMore reports whether another page exists. conversations.list carries no
// has_more flag, only a non-empty cursor.
func (p ChannelPage) HasMore() bool {
	return strings.TrimSpace(p.ResponseMetadata.NextCursor) != ""
}

type UserPage struct {
	Members          []User           `json:"members"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

func (p UserPage) HasMore() bool {
	return strings.TrimSpace(p.ResponseMetadata.NextCursor) != ""
}

type MessagePage struct {
	Messages         []Message        `json:"messages"`
	HasMore          bool             `json:"has_more"`
	ResponseMetadata ResponseMetadata `json:"response_metadata"`
}

type AuthIdentity struct {
	URL    string `json:"url"`
	Team   string `json:"team"`
	User   string `json:"user"`
	TeamID string `json:"team_id"`
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id,omitempty"`
}

type PostResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}
