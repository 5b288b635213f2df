package notify

import (
	"pulse-backend/internal/models"
)

// Out-of-band social events are targeted at user rooms. The CRUD handlers
// that mutate friendships and server membership live outside this subsystem;
// they call these emitters after their writes commit.

// FriendRequest tells the recipient someone wants to connect.
func (n *Notifier) FriendRequest(from *models.UserInfo, toUserID int) {
	n.rooms.SendToUser(toUserID, models.ServerEvent{
		Event:  models.EvFriendRequest,
		Friend: from,
	})
}

// FriendAccepted tells the original requester the request went through.
func (n *Notifier) FriendAccepted(by *models.UserInfo, toUserID int) {
	n.rooms.SendToUser(toUserID, models.ServerEvent{
		Event:  models.EvFriendAccept,
		Friend: by,
	})
}

// ServerAdded tells each member a server appeared in their list.
func (n *Notifier) ServerAdded(serverID string, memberIDs []int) {
	for _, id := range memberIDs {
		n.rooms.SendToUser(id, models.ServerEvent{
			Event:    models.EvServerAdded,
			ServerID: serverID,
		})
	}
}
