package application

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/q4ZAr/boost-market/internal/domain"
)

// The offer list is dense: slot 0 is an empty sentinel so that a zero
// userIndex means "not listed", and removal moves the last offer into the
// freed slot.

func (s *state) offerOf(user common.Address) (domain.BoostOffer, bool) {
	idx := s.userIndex[user]
	if idx == 0 {
		return domain.BoostOffer{}, false
	}
	return s.offers[idx], true
}

func (s *state) isRegistered(user common.Address) bool {
	return s.userIndex[user] != 0
}

func (s *state) addOffer(o domain.BoostOffer) {
	s.offers = append(s.offers, o)
	s.userIndex[o.User] = len(s.offers) - 1
}

func (s *state) setOffer(o domain.BoostOffer) {
	s.offers[s.userIndex[o.User]] = o
}

func (s *state) removeOffer(user common.Address) {
	idx := s.userIndex[user]
	if idx == 0 {
		return
	}
	last := len(s.offers) - 1
	if idx != last {
		s.offers[idx] = s.offers[last]
		s.userIndex[s.offers[idx].User] = idx
	}
	s.offers = s.offers[:last]
	delete(s.userIndex, user)
}
