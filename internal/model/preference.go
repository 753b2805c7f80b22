package model

// Preference is the set of channels a user has opted into. Updates replace
// the whole set; there is no per-channel toggle at the storage level.
type Preference struct {
	UserID   string    `json:"userId"`
	Channels []Channel `json:"channels"`
}

// DefaultChannels is applied at registration when the user supplies no
// explicit preference.
func DefaultChannels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush}
}
