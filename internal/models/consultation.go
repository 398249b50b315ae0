package models

import "time"

// DisplayInfo is what the profile lookup knows about a user.
type DisplayInfo struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// ParticipantState is the server side view of one user in a consultation room.
type ParticipantState struct {
	UserID          string    `json:"userId"`
	Name            string    `json:"name"`
	AvatarURL       string    `json:"avatarUrl"`
	IsAudioEnabled  bool      `json:"isAudioEnabled"`
	IsVideoEnabled  bool      `json:"isVideoEnabled"`
	IsScreenSharing bool      `json:"isScreenSharing"`
	HandRaised      bool      `json:"handRaised"`
	JoinedAt        time.Time `json:"joinedAt"`
}
