// Package realtime publishes events to the realtime transport.
package realtime

// UserChannel is the per-user channel a client subscribes to after
// authenticating. Direct-message and presence events land here.
func UserChannel(userID string) string {
	return "chat:" + userID
}

// ConversationChannel is the per-conversation channel carrying message and
// typing events for everyone viewing that conversation.
func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}
