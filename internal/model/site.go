package model

import "time"

// Site is the subset of the platform's site resource used by the bridge.
type Site struct {
	ID            string     `json:"id"`
	WorkspaceID   string     `json:"workspaceId,omitempty"`
	DisplayName   string     `json:"displayName"`
	ShortName     string     `json:"shortName"`
	CreatedOn     *time.Time `json:"createdOn,omitempty"`
	LastUpdated   *time.Time `json:"lastUpdated,omitempty"`
	LastPublished *time.Time `json:"lastPublished,omitempty"`
}

// Page is the subset of the platform's page resource used by the bridge.
type Page struct {
	ID     string `json:"id"`
	SiteID string `json:"siteId"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
}

// Authorization lists what an access credential is authorized for, as
// reported by token introspection.
type Authorization struct {
	SiteIDs      []string `json:"siteIds"`
	WorkspaceIDs []string `json:"workspaceIds"`
	UserIDs      []string `json:"userIds"`
}
