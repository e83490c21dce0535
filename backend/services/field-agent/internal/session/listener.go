package session

import "fieldservice/backend/services/field-agent/internal/models"

// Listener receives session notifications. Callbacks run on the goroutine
// that triggered them, after the Controller released its lock.
type Listener interface {
	OnSessionStart(Snapshot)
	OnStationLogged(models.StationLogEntry)
	OnSessionFinish(Result)
	OnSessionCancel()
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Start  func(Snapshot)
	Logged func(models.StationLogEntry)
	Finish func(Result)
	Cancel func()
}

func (f ListenerFuncs) OnSessionStart(s Snapshot) {
	if f.Start != nil {
		f.Start(s)
	}
}

func (f ListenerFuncs) OnStationLogged(e models.StationLogEntry) {
	if f.Logged != nil {
		f.Logged(e)
	}
}

func (f ListenerFuncs) OnSessionFinish(r Result) {
	if f.Finish != nil {
		f.Finish(r)
	}
}

func (f ListenerFuncs) OnSessionCancel() {
	if f.Cancel != nil {
		f.Cancel()
	}
}

// Listeners fans a notification out to several listeners in order.
type Listeners []Listener

func (ls Listeners) OnSessionStart(s Snapshot) {
	for _, l := range ls {
		l.OnSessionStart(s)
	}
}

func (ls Listeners) OnStationLogged(e models.StationLogEntry) {
	for _, l := range ls {
		l.OnStationLogged(e)
	}
}

func (ls Listeners) OnSessionFinish(r Result) {
	for _, l := range ls {
		l.OnSessionFinish(r)
	}
}

func (ls Listeners) OnSessionCancel() {
	for _, l := range ls {
		l.OnSessionCancel()
	}
}
