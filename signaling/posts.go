package signaling

import "github.com/okemsocial/okem_social/websocket"

// PostFeed manages post-{id} groups. Like and comment collaborators publish
// into them; clients viewing a post subscribe.
type PostFeed struct {
	registry *websocket.Registry
}

func NewPostFeed(registry *websocket.Registry) *PostFeed {
	return &PostFeed{registry: registry}
}

func (p *PostFeed) Registry() *websocket.Registry {
	return p.registry
}

func (p *PostFeed) JoinPost(c *websocket.Client, postID uint) error {
	if postID == 0 {
		return Errorf(CodeInvalidArgument, "post_id is required")
	}
	p.registry.Join(c, websocket.PostGroup(postID))
	return nil
}

func (p *PostFeed) LeavePost(c *websocket.Client, postID uint) error {
	if postID == 0 {
		return Errorf(CodeInvalidArgument, "post_id is required")
	}
	p.registry.Leave(c, websocket.PostGroup(postID))
	return nil
}

// Publish pushes an event to everyone watching the post.
func (p *PostFeed) Publish(postID uint, eventType string, payload interface{}) int {
	return p.registry.SendToGroup(websocket.PostGroup(postID), websocket.Event{Type: eventType, Data: payload})
}
