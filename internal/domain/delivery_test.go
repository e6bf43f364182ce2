package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type DeliveryTestSuite struct {
	suite.Suite
}

func TestDeliveryTestSuite(t *testing.T) {
	suite.Run(t, new(DeliveryTestSuite))
}

func (s *DeliveryTestSuite) TestSent() {
	state := DeliveryState{"telegram": {Sent: true}}

	s.True(state.Sent("telegram"))
	s.False(state.Sent("webpush"))

	var empty DeliveryState
	s.False(empty.Sent("telegram"))
}

func (s *DeliveryTestSuite) TestAllSent() {
	state := DeliveryState{
		"telegram": {Sent: true},
		"webpush":  {Sent: true},
	}
	s.True(state.AllSent([]string{"telegram", "webpush"}))

	partial := DeliveryState{"telegram": {Sent: true}}
	s.False(partial.AllSent([]string{"telegram", "webpush"}))

	s.True(partial.AllSent([]string{"telegram"}))
}

func (s *DeliveryTestSuite) TestScanRoundTrip() {
	now := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)
	state := DeliveryState{"telegram": {Sent: true, SentAt: &now}}

	value, err := state.Value()
	s.NoError(err)

	var scanned DeliveryState
	s.NoError(scanned.Scan(value))
	s.True(scanned.Sent("telegram"))
	s.NotNil(scanned["telegram"].SentAt)
}

func (s *DeliveryTestSuite) TestScanNil() {
	var state DeliveryState
	s.NoError(state.Scan(nil))
	s.Empty(state)
}
