package domain

// ChatID is the channel token correlating both peers' view of the same
// call. It is minted by the chat-persistence collaborator; the signaling
// core treats it as opaque and never validates membership.
type ChatID string

// CallType selects the media set requested for a call.
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)
