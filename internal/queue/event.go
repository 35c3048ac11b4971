// Package queue defines message payloads exchanged over the message broker.
package queue

// ReferralEmailEvent is published when an existing user asks the service to
// send their active referral code to a prospective user. It carries
// everything the mail consumer needs to render and send the message without
// querying the primary database.
type ReferralEmailEvent struct {
	ToEmail     string `json:"to_email"`
	Username    string `json:"username"`
	Code        uint64 `json:"code"`
	Link        string `json:"link"`
	LinkLabel   string `json:"link_label"`
	RequestedAt string `json:"requested_at"`
}
