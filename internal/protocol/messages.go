package protocol

import (
	"fmt"

	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/pion/webrtc/v4"
)

var validate = validator.New()

type JoinRequest struct {
	IsPresenter bool   `json:"isPresenter"`
	Name        string `json:"name,omitempty" validate:"omitempty,max=36"`
}

func (r JoinRequest) Validate() error {
	return validate.Struct(r)
}

// ParticipantEntry is the payload of add-participant and remove-participant.
type ParticipantEntry struct {
	SocketID    domain.ParticipantID `json:"socketId"`
	Participant *domain.Participant  `json:"participant,omitempty"`
}

type Welcome struct {
	SocketID     domain.ParticipantID `json:"socketId"`
	PresenterID  domain.ParticipantID `json:"presenterId"`
	Participants []ParticipantEntry   `json:"participants"`
}

type PresenterChanged struct {
	PresenterID domain.ParticipantID `json:"presenterId"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func DescriptionFromPion(desc webrtc.SessionDescription) *SessionDescription {
	return &SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func (s SessionDescription) ToPion() (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch s.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", s.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: s.SDP}, nil
}

type Candidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func CandidateFromPion(init webrtc.ICECandidateInit) *Candidate {
	return &Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c Candidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// Signal is the payload of every relayed family message. Clients fill To;
// the relay replaces it with From before delivery.
type Signal struct {
	To        domain.ParticipantID `json:"to,omitempty"`
	From      domain.ParticipantID `json:"from,omitempty"`
	Offer     *SessionDescription  `json:"offer,omitempty"`
	Answer    *SessionDescription  `json:"answer,omitempty"`
	Candidate *Candidate           `json:"candidate,omitempty"`
}

// Validate checks that the body required by k is present.
func (s Signal) Validate(k Kind) error {
	switch k {
	case KindOffer:
		if s.Offer == nil || s.Offer.Type != "offer" {
			return fmt.Errorf("%s: missing offer", k)
		}
	case KindAnswer:
		if s.Answer == nil || s.Answer.Type != "answer" {
			return fmt.Errorf("%s: missing answer", k)
		}
	case KindCandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%s: missing candidate", k)
		}
	case KindRequestOffer, KindDisconnect:
	default:
		return fmt.Errorf("unsupported kind %d", k)
	}
	return nil
}
