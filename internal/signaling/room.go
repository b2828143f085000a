package signaling

// RoomCapacity is the maximum number of connections bound to one room.
const RoomCapacity = 2

// Room is the set of connections sharing a code. It is only touched by the
// hub goroutine.
type Room struct {
	Code    string
	members map[*Client]struct{}
}

func newRoom(code string) *Room {
	return &Room{Code: code, members: make(map[*Client]struct{}, RoomCapacity)}
}

func (r *Room) add(c *Client) {
	r.members[c] = struct{}{}
}

func (r *Room) remove(c *Client) {
	delete(r.members, c)
}

func (r *Room) has(c *Client) bool {
	_, ok := r.members[c]
	return ok
}

func (r *Room) size() int {
	return len(r.members)
}

func (r *Room) full() bool {
	return len(r.members) >= RoomCapacity
}

// others returns every member except c.
func (r *Room) others(c *Client) []*Client {
	peers := make([]*Client, 0, len(r.members))
	for m := range r.members {
		if m != c {
			peers = append(peers, m)
		}
	}
	return peers
}
