package signal

import (
	"net/url"
	"strings"
)

// Role selects which side of a live room a channel connection takes.
type Role string

const (
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

const wsPath = "/ws"

// BuildURL constructs the signaling endpoint URL. The token and role always
// travel as query parameters; room_id addresses an existing room (required by
// subscribers) and seller_name is the publisher's display name.
func BuildURL(wsBase, token string, role Role, roomID, sellerName string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("role", string(role))
	if roomID != "" {
		q.Set("room_id", roomID)
	}
	if role == RolePublisher && sellerName != "" {
		q.Set("seller_name", sellerName)
	}
	return strings.TrimSuffix(wsBase, "/") + wsPath + "?" + q.Encode()
}
