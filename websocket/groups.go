package websocket

import "fmt"

func ConversationGroup(conversationID uint) string {
	return fmt.Sprintf("conversation_%d", conversationID)
}

func PostGroup(postID uint) string {
	return fmt.Sprintf("post-%d", postID)
}

func UserGroup(userID uint) string {
	return fmt.Sprintf("user-%d", userID)
}
