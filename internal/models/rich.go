package models

// RichMessage is the structured outbound payload for messages that embed
// external data. The JSON shape is a collaborator's wire contract (the chat
// platform's attachment format) and must pass through unchanged, so the tags
// here are exact and must not be renamed.
type RichMessage struct {
	Fallback   string      `json:"fallback"`
	Color      string      `json:"color,omitempty"`
	Pretext    string      `json:"pretext,omitempty"`
	AuthorName string      `json:"author_name,omitempty"`
	Title      string      `json:"title,omitempty"`
	TitleLink  string      `json:"title_link,omitempty"`
	Fields     []RichField `json:"fields,omitempty"`
	Footer     string      `json:"footer,omitempty"`
	FooterIcon string      `json:"footer_icon,omitempty"`
	Timestamp  int64       `json:"ts,omitempty"` // Unix seconds
}

// RichField is one title/value entry inside a RichMessage.
type RichField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
