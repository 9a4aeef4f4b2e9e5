package models

// CatalogStatus describes the loaded stop catalog.
type CatalogStatus struct {
	Loaded   bool       `json:"loaded"`
	Source   string     `json:"source"`
	Stops    int        `json:"stops"`
	LoadedAt *Timestamp `json:"loadedAt,omitempty"`
}

// CacheStatus describes the edge option cache.
type CacheStatus struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// CatalogReloadResponse is returned after a catalog reload.
type CatalogReloadResponse struct {
	Catalog       CatalogStatus `json:"catalog"`
	CachePurged   bool          `json:"cachePurged"`
	DurationMilli int64         `json:"durationMillis"`
}
