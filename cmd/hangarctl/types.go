package main

// Wire types mirrored from the server's JSON contracts.
// The CLI is self-contained and does not import from the server.

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type adminStats struct {
	TotalUsers     int64 `json:"total_users"`
	TotalApps      int64 `json:"total_apps"`
	TotalVersions  int64 `json:"total_versions"`
	TotalDownloads int64 `json:"total_downloads"`
}

type adminUser struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	IsAdmin   bool   `json:"is_admin"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	AppCount  int64  `json:"app_count"`
}

type adminUserList struct {
	Items    []adminUser `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

type adminApp struct {
	ID             uint   `json:"id"`
	BundleID       string `json:"bundle_id"`
	Name           string `json:"name"`
	Platform       string `json:"platform"`
	IsPublic       bool   `json:"is_public"`
	CreatedAt      string `json:"created_at"`
	OwnerUsername  string `json:"owner_username"`
	VersionCount   int64  `json:"version_count"`
	TotalDownloads int64  `json:"total_downloads"`
}

type adminAppList struct {
	Items    []adminApp `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}
