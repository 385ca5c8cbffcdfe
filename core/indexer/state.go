package indexer

type State uint8

const (
	StateIdle State = iota
	StateSyncing
	StateCaughtUp
	StateReorgDetected
	StateRollingBack
	StateClosed
)

var States = []State{
	StateIdle,
	StateSyncing,
	StateCaughtUp,
	StateReorgDetected,
	StateRollingBack,
	StateClosed,
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateCaughtUp:
		return "caught_up"
	case StateReorgDetected:
		return "reorg_detected"
	case StateRollingBack:
		return "rolling_back"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
