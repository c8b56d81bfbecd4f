package models

import "path"

// Collection paths in the document store.
const (
	UsersCollection = "users"
	ChatsCollection = "chats"
)

// MessagesPath returns the message collection of a conversation.
func MessagesPath(id ConversationID) string {
	return path.Join(ChatsCollection, string(id), "messages")
}

// FavoritesPath returns the favorites collection owned by an identity.
func FavoritesPath(owner string) string {
	return path.Join(UsersCollection, owner, "favorites")
}
