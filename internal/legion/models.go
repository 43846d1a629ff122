package legion

// OAuthDetails is the platform's OAuth discovery document.
type OAuthDetails struct {
	AuthorizationURL string `json:"authorization_url"`
	TokenURL         string `json:"token_url,omitempty"`
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenExchangeRequest carries the authorization-code grant parameters.
type TokenExchangeRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURI  string `json:"redirect_uri"`
}

// CreateEntityRequest describes a new platform entity.
type CreateEntityRequest struct {
	Name     string         `json:"name"`
	Category string         `json:"category"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EntityFilter narrows an entity search to a category/type pair.
type EntityFilter struct {
	Category string `json:"category"`
	Type     string `json:"type"`
}

// Position is an ECEF point location in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AttachLocationRequest places an entity at an ECEF position.
type AttachLocationRequest struct {
	Position   Position `json:"position"`
	RecordedAt string   `json:"recorded_at"`
}

// CreateFeedDefinitionRequest describes a new feed definition.
type CreateFeedDefinitionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	FeedType    string `json:"feed_type"`
	ContentType string `json:"content_type"`
}

// PushMessageRequest pushes one reading into a feed.
type PushMessageRequest struct {
	EntityID         string         `json:"entity_id"`
	FeedDefinitionID string         `json:"feed_definition_id"`
	MessageID        string         `json:"message_id"`
	Payload          map[string]any `json:"payload"`
	RecordedAt       string         `json:"recorded_at"`
}
