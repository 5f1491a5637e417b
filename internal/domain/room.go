package domain

// Room describes an active live room as returned by the listing API.
type Room struct {
	RoomID      string `json:"room_id"`
	SellerName  string `json:"seller_name"`
	ViewerCount int    `json:"viewer_count"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
}
