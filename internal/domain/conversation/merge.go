package conversation

// Merge resolves a conflict between the locally held version of a
// conversation and an incoming one (event patch or refreshed snapshot) for
// the same id. Last-writer-wins by LastChange, not by arrival order: the
// channel gives no ordering guarantee across reconnects, so the timestamp is
// the only authoritative tiebreaker. On equal timestamps the incoming side
// wins because the server copy is authoritative; the one exception is an
// unacknowledged local optimistic entry, which survives until something
// strictly newer arrives.
func Merge(current, incoming Conversation) Conversation {
	if current.ID != incoming.ID {
		return current
	}

	if current.Local && !incoming.Local {
		if incoming.LastChange.After(current.LastChange) {
			return incoming
		}
		return current
	}

	if incoming.LastChange.Before(current.LastChange) {
		return current
	}
	return incoming
}
