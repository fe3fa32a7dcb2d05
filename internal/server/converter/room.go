package converter

import (
	"time"

	"github.com/BioHazard786/watchparty/internal/signaling"
)

const serviceName = "Watch Party WebSocket Server"

type StatusResponse struct {
	Message     string    `json:"message"`
	Status      string    `json:"status"`
	Rooms       int       `json:"rooms"`
	Connections int       `json:"connections"`
	Timestamp   time.Time `json:"timestamp"`
}

type RoomSummaryResponse struct {
	RoomID           string `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
}

type RoomsResponse struct {
	Rooms []RoomSummaryResponse `json:"rooms"`
}

type ParticipantResponse struct {
	UserID    string `json:"userId"`
	IsHost    bool   `json:"isHost"`
	Connected bool   `json:"connected"`
}

type RoomResponse struct {
	RoomID           string                `json:"roomId"`
	ParticipantCount int                   `json:"participantCount"`
	Participants     []ParticipantResponse `json:"participants"`
	CreatedAt        time.Time             `json:"createdAt"`
}

func StatusToApi(rooms, connections int, now time.Time) *StatusResponse {
	return &StatusResponse{
		Message:     serviceName,
		Status:      "running",
		Rooms:       rooms,
		Connections: connections,
		Timestamp:   now.UTC(),
	}
}

func RoomsToApi(rooms []signaling.RoomSummary) *RoomsResponse {
	out := make([]RoomSummaryResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummaryResponse{RoomID: r.RoomID, ParticipantCount: r.ParticipantCount})
	}
	return &RoomsResponse{Rooms: out}
}

func RoomToApi(r signaling.RoomDetail) *RoomResponse {
	participants := make([]ParticipantResponse, 0, len(r.Participants))
	for _, p := range r.Participants {
		participants = append(participants, ParticipantResponse{
			UserID:    p.UserID,
			IsHost:    p.IsHost,
			Connected: p.Connected,
		})
	}

	return &RoomResponse{
		RoomID:           r.RoomID,
		ParticipantCount: r.ParticipantCount,
		Participants:     participants,
		CreatedAt:        r.CreatedAt,
	}
}
