package parser

// State is one step of the request parser's finite state machine. The zero
// value, StateMethod, is where every fresh parser (and every parser right
// after a request commits) starts.
type State uint8

const (
	StateMethod State = iota
	StateEndpoint
	StateQueryKey
	StateQueryValue
	StateFindHeaders
	StateHeaderKey
	StateHeaderValue
	StateFindBody
	StateBody
	numStates
)

// stateFunc processes as much of input as the current state can consume
// without blocking. It either returns having made no further progress
// (waiting for more bytes next Process call) or tail-calls into the next
// state's stateFunc with whatever of input it didn't need, exactly the way
// the chunk this was ported from threads one state transition into the next
// within a single Process call.
type stateFunc func(p *Parser, input []byte)

var stateTable [numStates]stateFunc

func init() {
	stateTable[StateMethod] = stateMethod
	stateTable[StateEndpoint] = stateEndpoint
	stateTable[StateQueryKey] = stateQueryKey
	stateTable[StateQueryValue] = stateQueryValue
	stateTable[StateFindHeaders] = stateFindHeaders
	stateTable[StateHeaderKey] = stateHeaderKey
	stateTable[StateHeaderValue] = stateHeaderValue
	stateTable[StateFindBody] = stateFindBody
	stateTable[StateBody] = stateBody
}
