// Package state holds the server-reported view of users and channels. Users,
// channels and the session are written by the inbound message dispatcher;
// the client also resets the store and sets the username when it connects.
// The reconciler and the public API read it under the client mutex.
package state

// User is a connected user as described by UserState messages. The session
// id is server-assigned and valid only for the lifetime of the connection;
// the server id is a stable identity set by the embedding application.
type User struct {
	Session   uint32
	ServerID  uint32
	Name      string
	ChannelID uint32
}

// Channel is one entry of the server's channel tree.
type Channel struct {
	ID        uint32
	Parent    uint32
	Name      string
	Temporary bool
}

// Store indexes users by session id and channels by channel id, and tracks
// our own session and username.
type Store struct {
	users    map[uint32]*User
	channels map[uint32]*Channel
	session  uint32
	username string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[uint32]*User),
		channels: make(map[uint32]*Channel),
	}
}

// Reset drops all users and channels and clears the session. The username
// is kept; it is reinstalled on every connect.
func (s *Store) Reset() {
	s.users = make(map[uint32]*User)
	s.channels = make(map[uint32]*Channel)
	s.session = 0
}

// UpsertUser creates or returns the user for a session.
func (s *Store) UpsertUser(session uint32) *User {
	u, ok := s.users[session]
	if !ok {
		u = &User{Session: session}
		s.users[session] = u
	}
	return u
}

// RemoveUser deletes the user for a session, reporting whether it existed.
func (s *Store) RemoveUser(session uint32) (*User, bool) {
	u, ok := s.users[session]
	if ok {
		delete(s.users, session)
	}
	return u, ok
}

// User returns the user for a session, or nil.
func (s *Store) User(session uint32) *User {
	return s.users[session]
}

// ForAllUsers calls fn for every known user. Iteration order is
// unspecified.
func (s *Store) ForAllUsers(fn func(u *User)) {
	for _, u := range s.users {
		fn(u)
	}
}

// UserCount returns the number of known users.
func (s *Store) UserCount() int { return len(s.users) }

// UpsertChannel creates or returns the channel for an id.
func (s *Store) UpsertChannel(id uint32) *Channel {
	ch, ok := s.channels[id]
	if !ok {
		ch = &Channel{ID: id}
		s.channels[id] = ch
	}
	return ch
}

// RemoveChannel deletes the channel for an id.
func (s *Store) RemoveChannel(id uint32) {
	delete(s.channels, id)
}

// Channels returns the live channel index. Callers must hold the client
// mutex and must not mutate it.
func (s *Store) Channels() map[uint32]*Channel {
	return s.channels
}

// ChannelByName returns the id of the channel with exactly the given name.
func (s *Store) ChannelByName(name string) (uint32, bool) {
	for id, ch := range s.channels {
		if ch.Name == name {
			return id, true
		}
	}
	return 0, false
}

// Session returns our own session id, valid after ServerSync.
func (s *Store) Session() uint32 { return s.session }

// SetSession records our session id from ServerSync.
func (s *Store) SetSession(session uint32) { s.session = session }

// Username returns the name we authenticate with.
func (s *Store) Username() string { return s.username }

// SetUsername records the name we authenticate with.
func (s *Store) SetUsername(name string) { s.username = name }
