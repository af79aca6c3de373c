package transport

import (
	"errors"
	"time"

	"github.com/puppy86/CS-Node/packet"
)

// RegistrationInterval is how often the pre-registration loop resends
// its Registration packet while waiting for a response (spec §4.5.5).
const RegistrationInterval = 5 * time.Second

// ErrVersionRefused names the outcome in which the signal server answers
// with RegistrationConnectionRefused (spec §4.5.5). Register does not
// detect that answer and does not return this error.
var ErrVersionRefused = errors.New("transport: registration refused (version mismatch)")

// RegistrationResult carries what the pre-registration loop learned:
// either an initial round table to ingest, or nothing (plain connect).
type RegistrationResult struct {
	RoundTable []byte // non-nil when the response carried round-table bytes
}

// Register runs the pre-registration loop against signalServer: it sends
// a Registration packet carrying the decimal version string every
// RegistrationInterval until the session's dispatcher, through
// registrationObserver, reports that a Registration or
// Redirect/RegistrationLevelNode response has arrived. A
// RegistrationConnectionRefused answer does not end the loop; Register
// keeps resending until ReceiveOne returns an error. It runs on the
// caller's goroutine; callers should run it
// on a dedicated goroutine that exits once this returns (spec §5).
func (s *Session) Register(signalServer Endpoint, version string, deadlinePerAttempt time.Duration) (*RegistrationResult, error) {
	payload := []byte(version)
	ticker := time.NewTicker(RegistrationInterval)
	defer ticker.Stop()

	s.sendRegistration(signalServer, payload)

	for {
		if err := s.ReceiveOne(deadlinePerAttempt); err != nil {
			return nil, err
		}

		if result, done := s.registrationOutcome(); done {
			return result, nil
		}

		select {
		case <-ticker.C:
			s.sendRegistration(signalServer, payload)
		default:
		}
	}
}

func (s *Session) sendRegistration(signalServer Endpoint, payload []byte) {
	s.Send(packet.CmdRegistration, packet.SubEmpty, payload, &signalServer)
	s.FireDueTasks()
}

// registrationOutcome asks the session's dispatcher whether registration
// has concluded when that dispatcher also implements registrationObserver
// (the node package's Node does); with any other dispatcher it never
// resolves.
func (s *Session) registrationOutcome() (*RegistrationResult, bool) {
	obs, ok := s.dispatcher.(registrationObserver)
	if !ok {
		return nil, false
	}
	return obs.RegistrationOutcome()
}

// registrationObserver lets a Dispatcher additionally report whether
// registration has concluded, without transport needing to know about
// node-level round-table parsing.
type registrationObserver interface {
	RegistrationOutcome() (*RegistrationResult, bool)
}
