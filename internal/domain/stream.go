package domain

// Stream is one configured account stream: a single list of records fetched
// from one provider account and reconciled against its own cache entry.
type Stream struct {
	// Name is the stream key. It names the cache entry and heads notifications.
	Name string

	Kind Kind

	// CredentialsEnv names the environment variable holding "user:password".
	CredentialsEnv string

	// AccountID is the provider's opaque account or card hash (Itau only).
	AccountID string

	// CardNumber optionally restricts a Sistarbanc stream to one card.
	CardNumber string

	// Currency is the account currency for Itau bank accounts, whose
	// movements do not carry one.
	Currency string
}

// Provider returns the provider name derived from the stream kind.
func (s Stream) Provider() string {
	return s.Kind.Provider()
}

// LoginGroup identifies the provider session a stream is fetched with.
type LoginGroup struct {
	Provider       string
	CredentialsEnv string
}

// Group returns the login group of the stream.
func (s Stream) Group() LoginGroup {
	return LoginGroup{Provider: s.Provider(), CredentialsEnv: s.CredentialsEnv}
}

// GroupStreams partitions streams by login group, keeping first-seen group
// order and config order within each group.
func GroupStreams(streams []Stream) ([]LoginGroup, map[LoginGroup][]Stream) {
	var order []LoginGroup
	groups := make(map[LoginGroup][]Stream)
	for _, s := range streams {
		g := s.Group()
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], s)
	}
	return order, groups
}
