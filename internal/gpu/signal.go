package gpu

// mapSignal is a one-shot, single-slot handoff from a map callback (running
// inside Backend.Poll) to the host goroutine waiting on it.
type mapSignal chan MapStatus

func newMapSignal() mapSignal {
	return make(mapSignal, 1)
}

// complete delivers status. A second completion is dropped.
func (s mapSignal) complete(status MapStatus) {
	select {
	case s <- status:
	default:
	}
}

// maxIdlePolls bounds how many waits on an empty queue await makes before it
// reports a callback that never fired as aborted.
const maxIdlePolls = 8

// await polls the device with wait=true until the signal fires.
func (s mapSignal) await(backend Backend) MapStatus {
	idle := 0
	for {
		select {
		case status := <-s:
			return status
		default:
		}
		if idle == maxIdlePolls {
			return MapStatusAborted
		}
		if backend.Poll(true) {
			idle++
		}
	}
}
