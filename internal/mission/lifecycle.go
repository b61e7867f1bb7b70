package mission

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/geo"
)

// State is one of Finished, Uploading or InProgress.
type State interface {
	Name() string
	isState()
}

// Finished holds no plan.
type Finished struct{}

// Uploading owns the plan while it is uploaded and started.
type Uploading struct {
	Plan       Plan
	Generation uint64
	Upload     *UploadRetrier
	Start      *StartRetrier
}

// InProgress owns the plan the vehicle is flying.
type InProgress struct {
	Plan       Plan
	Generation uint64
}

func (Finished) Name() string    { return "finished" }
func (*Uploading) Name() string  { return "uploading" }
func (*InProgress) Name() string { return "in_progress" }

func (Finished) isState()    {}
func (*Uploading) isState()  {}
func (*InProgress) isState() {}

// Commander carries out the vehicle side of the lifecycle. Upload and Start
// results are reported back through OnUploadResult and OnStartResult.
type Commander interface {
	Uploader
	Starter
	Pause()
	// Cleanup cancels any upload in flight and clears the vehicle mission.
	Cleanup(token uint64)
}

type Config struct {
	UploadAttempts int
	StartTimeout   time.Duration
	// InitialInstance is the mission instance assumed consumed at startup.
	InitialInstance uint32
}

// Lifecycle is the outer mission state machine. It is not safe for
// concurrent use; all calls must come from one goroutine.
type Lifecycle struct {
	cfg             Config
	cmd             Commander
	buffer          *Buffer
	overridden      func() bool
	state           State
	generation      uint64
	lastInstance    uint32
	lastMissionSize int
	events          []Event
}

func NewLifecycle(cfg Config, cmd Commander, buffer *Buffer, overridden func() bool) *Lifecycle {
	return &Lifecycle{
		cfg:          cfg,
		cmd:          cmd,
		buffer:       buffer,
		overridden:   overridden,
		state:        Finished{},
		lastInstance: cfg.InitialInstance,
	}
}

func (l *Lifecycle) State() State {
	return l.state
}

func (l *Lifecycle) Buffer() *Buffer {
	return l.buffer
}

// Plan returns the plan owned by the current state, if any.
func (l *Lifecycle) Plan() (Plan, bool) {
	switch s := l.state.(type) {
	case *Uploading:
		return s.Plan, true
	case *InProgress:
		return s.Plan, true
	}
	return Plan{}, false
}

func (l *Lifecycle) LastMissionSize() int {
	return l.lastMissionSize
}

func (l *Lifecycle) LastInstance() uint32 {
	return l.lastInstance
}

// Advance performs one tick of the state machine.
func (l *Lifecycle) Advance(now time.Time, build PlanFunc) []Event {
	switch s := l.state.(type) {
	case Finished:
		l.drain(build)
	case *Uploading:
		l.progress(now, s)
	}
	return l.flush()
}

// OnUploadResult consumes the completion of an upload. Results for a
// superseded generation are ignored.
func (l *Lifecycle) OnUploadResult(now time.Time, generation uint64, err error) []Event {
	s, ok := l.state.(*Uploading)
	if !ok || s.Generation != generation || s.Upload.State() != UploadStarted {
		return nil
	}
	s.Upload.Complete(err)
	l.progress(now, s)
	return l.flush()
}

// OnStartResult consumes the completion of a mission start.
func (l *Lifecycle) OnStartResult(now time.Time, generation uint64, err error) []Event {
	s, ok := l.state.(*Uploading)
	if !ok || s.Generation != generation || s.Start.State() != StartPending {
		return nil
	}
	s.Start.Complete(err)
	l.progress(now, s)
	return l.flush()
}

// OnMissionResult ends the running mission when the vehicle reports a
// finished mission with an instance not consumed before.
func (l *Lifecycle) OnMissionResult(finished bool, instance uint32) []Event {
	s, ok := l.state.(*InProgress)
	if !ok || !finished || instance == l.lastInstance {
		return nil
	}
	l.lastInstance = instance
	l.state = Finished{}
	l.emit(MissionCompleted{Instance: instance, Size: s.Plan.Len()})
	return l.flush()
}

// Stop returns to Finished from any state, drops buffered waypoints and the
// plan, and asks the vehicle to cancel and clear its mission. The returned
// token identifies the cleanup request.
func (l *Lifecycle) Stop() (uint64, []Event) {
	l.generation++
	token := l.generation

	previous := l.state.Name()
	l.buffer.Clear()
	l.state = Finished{}
	l.cmd.Cleanup(token)
	l.emit(MissionStopped{Previous: previous})
	return token, l.flush()
}

func (l *Lifecycle) drain(build PlanFunc) {
	if l.buffer.IsEmpty() {
		return
	}

	waypoints := l.buffer.DrainAll()
	plan, err := build(waypoints)
	if err != nil {
		l.emit(MissionAbandoned{Reason: errors.WithMessage(err, "mission plan could not be built")})
		return
	}

	l.cmd.Pause()
	l.generation++
	s := &Uploading{
		Plan:       plan,
		Generation: l.generation,
		Upload:     NewUploadRetrier(l.cfg.UploadAttempts),
		Start:      NewStartRetrier(l.cfg.StartTimeout),
	}
	l.state = s

	last, _ := plan.Last()
	l.emit(UploadBegun{Waypoints: plan.Waypoints(), Last: last})
	l.beginUpload(s)
}

func (l *Lifecycle) beginUpload(s *Uploading) {
	if err := s.Upload.Begin(s.Generation, s.Plan, l.overridden(), l.cmd); err != nil {
		l.emit(UploadAttemptFailed{Attempt: s.Upload.Attempts(), Err: err})
	}
}

func (l *Lifecycle) attemptStart(now time.Time, s *Uploading) {
	if err := s.Start.Attempt(now, s.Generation, l.overridden(), l.cmd); err != nil {
		l.emit(StartAttemptRejected{Attempt: s.Start.Attempts(), Err: err})
	}
}

func (l *Lifecycle) progress(now time.Time, s *Uploading) {
	switch s.Upload.State() {
	case UploadFailed:
		if s.Upload.Exhausted() {
			l.abandon(errors.Errorf("mission upload failed %d times, scrapping mission: %v", s.Upload.Attempts(), s.Upload.LastError()))
			return
		}
		l.beginUpload(s)

	case UploadSucceeded:
		switch s.Start.State() {
		case StartNotStarted:
			l.attemptStart(now, s)
		case StartPending:
			if s.Start.Expired(now) {
				l.abandon(errors.Errorf("mission start timed out after %d attempts", s.Start.Attempts()))
			}
		case StartRejected:
			if s.Start.Expired(now) {
				l.abandon(errors.Errorf("mission start timed out after %d attempts: %v", s.Start.Attempts(), s.Start.LastError()))
				return
			}
			l.attemptStart(now, s)
		case StartAccepted:
			l.state = &InProgress{Plan: s.Plan, Generation: s.Generation}
			l.lastMissionSize = s.Plan.Len()
			l.emit(MissionStarted{Size: s.Plan.Len(), UploadAttempts: s.Upload.Attempts(), StartAttempts: s.Start.Attempts()})
		}
	}
}

// abandon drops the plan together with any waypoints buffered meanwhile.
func (l *Lifecycle) abandon(reason error) {
	l.buffer.Clear()
	l.state = Finished{}
	l.emit(MissionAbandoned{Reason: reason})
}

func (l *Lifecycle) emit(e Event) {
	l.events = append(l.events, e)
}

func (l *Lifecycle) flush() []Event {
	out := l.events
	l.events = nil
	return out
}

// Event describes a transition of the lifecycle.
type Event interface {
	isEvent()
}

type UploadBegun struct {
	Waypoints []geo.LocalWaypoint
	Last      geo.LocalWaypoint
}

type UploadAttemptFailed struct {
	Attempt int
	Err     error
}

type StartAttemptRejected struct {
	Attempt int
	Err     error
}

type MissionStarted struct {
	Size           int
	UploadAttempts int
	StartAttempts  int
}

type MissionCompleted struct {
	Instance uint32
	Size     int
}

type MissionAbandoned struct {
	Reason error
}

type MissionStopped struct {
	Previous string
}

func (UploadBegun) isEvent()          {}
func (UploadAttemptFailed) isEvent()  {}
func (StartAttemptRejected) isEvent() {}
func (MissionStarted) isEvent()       {}
func (MissionCompleted) isEvent()     {}
func (MissionAbandoned) isEvent()     {}
func (MissionStopped) isEvent()       {}
