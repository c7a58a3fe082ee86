package model

// ValidationVote is a single bystander verdict on a pending alert. Votes are
// unique per (AlertID, VoterID); a re-vote overwrites the previous one.
type ValidationVote struct {
	AlertID string
	VoterID string
	Vote    bool
}

// PushSubscription is a registered Web Push endpoint for a principal. It is
// upserted on registration and deleted once the provider reports the endpoint
// gone.
type PushSubscription struct {
	UserID   string `json:"userId"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}
