package models

// Service is one remote sensor observation service whose metadata is
// mirrored into the local catalog. The (Type, URL) pair is the natural
// key; ID is assigned by the store on first insert.
type Service struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Version     string `json:"version"`

	// Connector is the registry name of the connector that harvested
	// this service. The read path routes observation requests through it.
	Connector string `json:"connector"`
}
