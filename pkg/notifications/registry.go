package notifications

// Registry maps channel types to implementations. It is filled once at
// startup and read concurrently afterwards without locking.
type Registry struct {
	channels map[ChannelType]Channel
}

// NewRegistry registers channels in order. A later channel of the same type
// replaces an earlier one.
func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[ChannelType]Channel, len(channels))}
	for _, ch := range channels {
		r.Register(ch)
	}
	return r
}

// Register adds ch, replacing any channel of the same type.
// Not safe for use once dispatching has started.
func (r *Registry) Register(ch Channel) {
	if ch == nil {
		return
	}
	r.channels[ch.Type()] = ch
}

// Get returns the channel registered for t.
func (r *Registry) Get(t ChannelType) (Channel, bool) {
	ch, ok := r.channels[t]
	return ch, ok
}

func (r *Registry) IsRegistered(t ChannelType) bool {
	_, ok := r.channels[t]
	return ok
}

// Types returns registered types in ChannelOrder.
func (r *Registry) Types() []ChannelType {
	out := make([]ChannelType, 0, len(r.channels))
	for _, t := range ChannelOrder {
		if r.IsRegistered(t) {
			out = append(out, t)
		}
	}
	return out
}
