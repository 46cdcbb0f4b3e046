package ingest

import "github.com/zxspring21/AISEMITEST/internal/domain"

type State int

const (
	StateIdle State = iota
	StateInLot
	StateInWafer
	StateInPart
)

func (s State) String() string {
	switch s {
	case StateInLot:
		return "in_lot"
	case StateInWafer:
		return "in_wafer"
	case StateInPart:
		return "in_part"
	}
	return "idle"
}

type partKey struct {
	head int
	site int
}

// session is the mutable context of one ingest run. Everything except the
// lot-independent counters is scoped to the current lot.
type session struct {
	program *domain.TestProgram
	lot     *domain.Lot
	wafer   *domain.Wafer
	part    *partKey

	// results buffered for the open part, converted but not yet tied to a die
	results []domain.TestItem
	// results that arrived while no part was open
	strays int

	hardBins binRegistry
	softBins binRegistry
	suites   suiteRegistry
}

func newSession() *session {
	return &session{
		hardBins: binRegistry{},
		softBins: binRegistry{},
		suites:   suiteRegistry{},
	}
}

// openLot starts a fresh scope: nothing from the previous lot carries over.
func (s *session) openLot(program domain.TestProgram, lot domain.Lot) {
	s.program = &program
	s.lot = &lot
	s.wafer = nil
	s.part = nil
	s.results = s.results[:0]
	s.strays = 0
	s.hardBins = binRegistry{}
	s.softBins = binRegistry{}
	s.suites = suiteRegistry{}
}

func (s *session) buffered() int {
	return len(s.results) + s.strays
}

func (s *session) clearPart() {
	s.part = nil
	s.results = s.results[:0]
	s.strays = 0
}

func (s *session) state() State {
	switch {
	case s.part != nil:
		return StateInPart
	case s.wafer != nil:
		return StateInWafer
	case s.lot != nil:
		return StateInLot
	}
	return StateIdle
}
