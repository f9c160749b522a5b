package protocol

import "strings"

const (
	EventWelcome           = "welcome"
	EventPresenter         = "presenter"
	EventJoin              = "join"
	EventLeave             = "leave"
	EventAddParticipant    = "add-participant"
	EventRemoveParticipant = "remove-participant"
)

// Namespace separates the main broadcast links from the lobby preview links.
// Both families carry the same five messages with the same semantics.
type Namespace string

const (
	Main  Namespace = "main"
	Lobby Namespace = "lobby"
)

// Kind is one of the five relayed signaling messages.
type Kind int

const (
	KindRequestOffer Kind = iota
	KindOffer
	KindAnswer
	KindCandidate
	KindDisconnect
)

var kindNames = [...]string{
	KindRequestOffer: "request-offer",
	KindOffer:        "webrtc-offer",
	KindAnswer:       "webrtc-answer",
	KindCandidate:    "webrtc-candidate",
	KindDisconnect:   "webrtc-disconnect",
}

const lobbyPrefix = "lobby-"

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Event returns the wire name of k in ns. Lobby names keep the historical
// spelling: "request-offer-lobby" but "lobby-webrtc-offer".
func (ns Namespace) Event(k Kind) string {
	name := k.String()
	if ns != Lobby {
		return name
	}
	if k == KindRequestOffer {
		return name + "-lobby"
	}
	return lobbyPrefix + name
}

// ParseEvent maps a wire name back to its namespace and kind.
func ParseEvent(name string) (Namespace, Kind, bool) {
	ns := Main
	switch {
	case strings.HasPrefix(name, lobbyPrefix):
		ns = Lobby
		name = strings.TrimPrefix(name, lobbyPrefix)
		if name == KindRequestOffer.String() {
			return "", 0, false
		}
	case name == KindRequestOffer.String()+"-lobby":
		return Lobby, KindRequestOffer, true
	}
	for k, n := range kindNames {
		if n == name {
			return ns, Kind(k), true
		}
	}
	return "", 0, false
}
