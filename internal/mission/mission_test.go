package mission

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/tiiuae/control_interface/internal/geo"
)

type fakeCommander struct {
	uploads   []uint64
	starts    []uint64
	cleanups  []uint64
	pauses    int
	uploadErr error
	startErr  error
}

func (f *fakeCommander) Upload(generation uint64, plan Plan) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, generation)
	return nil
}

func (f *fakeCommander) Start(generation uint64) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, generation)
	return nil
}

func (f *fakeCommander) Pause() {
	f.pauses++
}

func (f *fakeCommander) Cleanup(token uint64) {
	f.cleanups = append(f.cleanups, token)
}

func testBuilder() PlanFunc {
	return ItemBuilder{Transform: geo.NewTransform(geo.Origin{LatitudeDeg: 60, LongitudeDeg: 25})}.Plan
}

func newTestLifecycle(cmd *fakeCommander, manual *bool) *Lifecycle {
	cfg := Config{UploadAttempts: 5, StartTimeout: 5 * time.Second, InitialInstance: 1}
	return NewLifecycle(cfg, cmd, NewBuffer(), func() bool { return *manual })
}

func uploading(t *testing.T, l *Lifecycle) *Uploading {
	t.Helper()
	s, ok := l.State().(*Uploading)
	if !ok {
		t.Fatalf("expected uploading, got %s", l.State().Name())
	}
	return s
}

func hasAbandon(events []Event, substr string) bool {
	for _, e := range events {
		if a, ok := e.(MissionAbandoned); ok && strings.Contains(a.Reason.Error(), substr) {
			return true
		}
	}
	return false
}

func TestBufferDrainIsAtomic(t *testing.T) {
	b := NewBuffer()
	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	var drained [][]geo.LocalWaypoint
	var mu sync.Mutex

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Append(geo.LocalWaypoint{X: float64(w), Y: float64(i)})
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				d := b.DrainAll()
				mu.Lock()
				drained = append(drained, d)
				mu.Unlock()
			}
		}
	}()
	wg.Wait()
	close(done)

	seen := make(map[geo.LocalWaypoint]int)
	mu.Lock()
	for _, d := range drained {
		for _, p := range d {
			seen[p]++
		}
	}
	mu.Unlock()
	for _, p := range b.DrainAll() {
		seen[p]++
	}

	if len(seen) != writers*perWriter {
		t.Errorf("expected %d distinct waypoints, got %d", writers*perWriter, len(seen))
	}
	for p, n := range seen {
		if n != 1 {
			t.Errorf("expected %+v exactly once, got %d", p, n)
		}
	}
}

func TestBufferPreservesOrder(t *testing.T) {
	b := NewBuffer()
	b.Append(geo.LocalWaypoint{X: 1})
	b.Append(geo.LocalWaypoint{X: 2}, geo.LocalWaypoint{X: 3})
	if b.Len() != 3 {
		t.Errorf("expected 3, got %d", b.Len())
	}
	got := b.DrainAll()
	for i, p := range got {
		if p.X != float64(i+1) {
			t.Errorf("expected x=%d at %d, got %f", i+1, i, p.X)
		}
	}
	if !b.IsEmpty() {
		t.Error("expected empty buffer after drain")
	}
}

func TestItemBuilder(t *testing.T) {
	tr := geo.NewTransform(geo.Origin{LatitudeDeg: 60, LongitudeDeg: 25})
	b := ItemBuilder{
		Transform:           tr,
		HomeOffset:          r3.Vector{X: 1, Y: 2, Z: -0.5},
		YawOffsetCorrection: 1.5707963267948966,
		TargetVelocity:      1,
		LoiterTime:          2,
		AcceptanceRadius:    0.3,
	}

	item := b.Item(geo.LocalWaypoint{X: 1, Y: 2, Z: 3, Yaw: 0})
	if math.Abs(item.LatitudeDeg-60) > 1e-9 || math.Abs(item.LongitudeDeg-25) > 1e-9 {
		t.Errorf("expected home offset to cancel, got %f %f", item.LatitudeDeg, item.LongitudeDeg)
	}
	if math.Abs(item.RelativeAltitudeM-3.5) > 1e-9 {
		t.Errorf("expected altitude 3.5, got %f", item.RelativeAltitudeM)
	}
	if math.Abs(item.YawDeg+90) > 1e-9 {
		t.Errorf("expected yaw -90, got %f", item.YawDeg)
	}
	if !item.IsFlyThrough || item.SpeedMS != 1 || item.LoiterTimeS != 2 || item.AcceptanceRadiusM != 0.3 {
		t.Errorf("unexpected item options %+v", item)
	}

	if _, err := (ItemBuilder{}).Plan([]geo.LocalWaypoint{{}}); err == nil {
		t.Error("expected error without transform")
	}
	if _, err := b.Plan(nil); err != ErrEmptyPlan {
		t.Errorf("expected ErrEmptyPlan, got %v", err)
	}
}

func TestUploadRetrierFailsFast(t *testing.T) {
	cmd := &fakeCommander{}
	plan, _ := testBuilder()([]geo.LocalWaypoint{{X: 1}})

	tests := []struct {
		name   string
		plan   Plan
		manual bool
		want   error
	}{
		{"empty plan", Plan{}, false, ErrEmptyPlan},
		{"manual override", plan, true, ErrManualOverride},
	}

	for _, tt := range tests {
		r := NewUploadRetrier(5)
		err := r.Begin(1, tt.plan, tt.manual, cmd)
		if err != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		if r.State() != UploadFailed {
			t.Errorf("%s: expected failed, got %s", tt.name, r.State())
		}
	}
	if len(cmd.uploads) != 0 {
		t.Errorf("expected no uploads, got %d", len(cmd.uploads))
	}
}

func TestStartRetrierWindow(t *testing.T) {
	cmd := &fakeCommander{}
	r := NewStartRetrier(2 * time.Second)
	t0 := time.Unix(1000, 0)

	if r.Expired(t0.Add(time.Hour)) {
		t.Error("expected no expiry before the first attempt")
	}

	now := t0
	for i := 0; i < 50; i++ {
		r.Attempt(now, 1, false, cmd)
		r.Complete(errors.New("busy"))
		now = now.Add(40 * time.Millisecond)
	}
	if r.Expired(t0.Add(2 * time.Second)) {
		t.Error("expected window to include exactly the timeout")
	}
	if !r.Expired(t0.Add(2*time.Second + time.Nanosecond)) {
		t.Error("expected expiry right after the timeout")
	}
	if r.Attempts() != 50 {
		t.Errorf("expected 50 attempts, got %d", r.Attempts())
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	cmd := &fakeCommander{}
	manual := false
	l := newTestLifecycle(cmd, &manual)
	now := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1, Y: 0, Z: 2, Yaw: 0})
	events := l.Advance(now, testBuilder())

	s := uploading(t, l)
	if s.Plan.Len() != 1 {
		t.Errorf("expected 1-item plan, got %d", s.Plan.Len())
	}
	if !l.Buffer().IsEmpty() {
		t.Error("expected buffer drained")
	}
	if len(cmd.uploads) != 1 || cmd.pauses != 1 {
		t.Errorf("expected one upload and one pause, got %d and %d", len(cmd.uploads), cmd.pauses)
	}
	if begun, ok := events[0].(UploadBegun); !ok || begun.Last.X != 1 {
		t.Errorf("expected UploadBegun with last waypoint, got %+v", events)
	}

	l.OnUploadResult(now, s.Generation, nil)
	if len(cmd.starts) != 1 {
		t.Fatalf("expected start attempted, got %d", len(cmd.starts))
	}

	events = l.OnStartResult(now, s.Generation, nil)
	if _, ok := l.State().(*InProgress); !ok {
		t.Fatalf("expected in_progress, got %s", l.State().Name())
	}
	if l.LastMissionSize() != 1 {
		t.Errorf("expected last mission size 1, got %d", l.LastMissionSize())
	}
	if _, ok := events[0].(MissionStarted); !ok {
		t.Errorf("expected MissionStarted, got %+v", events)
	}

	l.OnMissionResult(true, 2)
	if _, ok := l.State().(Finished); !ok {
		t.Errorf("expected finished, got %s", l.State().Name())
	}
	if _, ok := l.Plan(); ok {
		t.Error("expected no plan in finished")
	}
}

func TestLifecycleIgnoresDuplicateInstance(t *testing.T) {
	cmd := &fakeCommander{}
	manual := false
	l := newTestLifecycle(cmd, &manual)
	now := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1})
	l.Advance(now, testBuilder())
	s := uploading(t, l)
	l.OnUploadResult(now, s.Generation, nil)
	l.OnStartResult(now, s.Generation, nil)

	if events := l.OnMissionResult(true, 1); events != nil {
		t.Errorf("expected no events, got %+v", events)
	}
	l.OnMissionResult(false, 7)
	if _, ok := l.State().(*InProgress); !ok {
		t.Fatalf("expected in_progress, got %s", l.State().Name())
	}

	l.OnMissionResult(true, 2)
	l.Buffer().Append(geo.LocalWaypoint{X: 2})
	l.Advance(now, testBuilder())
	s = uploading(t, l)
	l.OnUploadResult(now, s.Generation, nil)
	l.OnStartResult(now, s.Generation, nil)

	// late report of the previous mission
	l.OnMissionResult(true, 2)
	if _, ok := l.State().(*InProgress); !ok {
		t.Errorf("expected stale instance to be ignored, got %s", l.State().Name())
	}
}

func TestLifecycleUploadExhaustion(t *testing.T) {
	cmd := &fakeCommander{}
	manual := false
	l := newTestLifecycle(cmd, &manual)
	now := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1})
	l.Advance(now, testBuilder())
	s := uploading(t, l)

	var events []Event
	for i := 0; i < 5; i++ {
		events = l.OnUploadResult(now, s.Generation, errors.New("busy"))
	}

	if _, ok := l.State().(Finished); !ok {
		t.Fatalf("expected finished, got %s", l.State().Name())
	}
	if len(cmd.uploads) != 5 {
		t.Errorf("expected 5 upload attempts, got %d", len(cmd.uploads))
	}
	if !hasAbandon(events, "failed 5 times") {
		t.Errorf("expected exhaustion reason, got %+v", events)
	}
	if !l.Buffer().IsEmpty() {
		t.Error("expected empty buffer")
	}
	if _, ok := l.Plan(); ok {
		t.Error("expected no plan")
	}
}

func TestLifecycleAbandonDropsLateWaypoints(t *testing.T) {
	t.Run("upload exhausted", func(t *testing.T) {
		cmd := &fakeCommander{}
		manual := false
		l := newTestLifecycle(cmd, &manual)
		now := time.Unix(1000, 0)

		l.Buffer().Append(geo.LocalWaypoint{X: 1})
		l.Advance(now, testBuilder())
		s := uploading(t, l)
		l.Buffer().Append(geo.LocalWaypoint{X: 2})

		for i := 0; i < 5; i++ {
			l.OnUploadResult(now, s.Generation, errors.New("busy"))
		}

		if _, ok := l.State().(Finished); !ok {
			t.Fatalf("expected finished, got %s", l.State().Name())
		}
		if l.Buffer().Len() != 0 {
			t.Errorf("expected empty buffer, got %d waypoints", l.Buffer().Len())
		}
		l.Advance(now.Add(time.Second), testBuilder())
		if _, ok := l.State().(Finished); !ok {
			t.Errorf("expected no new mission, got %s", l.State().Name())
		}
		if len(cmd.uploads) != 5 {
			t.Errorf("expected 5 upload attempts, got %d", len(cmd.uploads))
		}
	})

	t.Run("start timed out", func(t *testing.T) {
		cmd := &fakeCommander{}
		manual := false
		l := newTestLifecycle(cmd, &manual)
		t0 := time.Unix(1000, 0)

		l.Buffer().Append(geo.LocalWaypoint{X: 1})
		l.Advance(t0, testBuilder())
		s := uploading(t, l)
		l.OnUploadResult(t0, s.Generation, nil)
		l.Buffer().Append(geo.LocalWaypoint{X: 2})

		l.Advance(t0.Add(6*time.Second), testBuilder())
		if _, ok := l.State().(Finished); !ok {
			t.Fatalf("expected finished, got %s", l.State().Name())
		}
		if l.Buffer().Len() != 0 {
			t.Errorf("expected empty buffer, got %d waypoints", l.Buffer().Len())
		}
	})
}

func TestLifecycleFastFailRetriedOnTick(t *testing.T) {
	cmd := &fakeCommander{uploadErr: errors.New("queue full")}
	manual := false
	l := newTestLifecycle(cmd, &manual)
	now := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1})
	l.Advance(now, testBuilder())
	for i := 0; i < 3; i++ {
		l.Advance(now, testBuilder())
	}
	s := uploading(t, l)
	if s.Upload.Attempts() != 4 {
		t.Errorf("expected 4 attempts, got %d", s.Upload.Attempts())
	}

	cmd.uploadErr = nil
	l.Advance(now, testBuilder())
	if s.Upload.State() != UploadStarted {
		t.Errorf("expected started, got %s", s.Upload.State())
	}
}

func TestLifecycleStartTimeout(t *testing.T) {
	cmd := &fakeCommander{}
	manual := false
	l := newTestLifecycle(cmd, &manual)
	t0 := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1})
	l.Advance(t0, testBuilder())
	s := uploading(t, l)
	l.OnUploadResult(t0, s.Generation, nil)

	now := t0
	for now.Sub(t0) <= 5*time.Second {
		l.OnStartResult(now, s.Generation, errors.New("busy"))
		if _, ok := l.State().(*Uploading); !ok {
			t.Fatalf("expected still uploading at %v", now.Sub(t0))
		}
		now = now.Add(500 * time.Millisecond)
	}

	events := l.OnStartResult(now, s.Generation, errors.New("busy"))
	if _, ok := l.State().(Finished); !ok {
		t.Fatalf("expected finished after timeout, got %s", l.State().Name())
	}
	if !hasAbandon(events, "timed out") {
		t.Errorf("expected timeout reason, got %+v", events)
	}
}

func TestLifecyclePendingStartTimesOutOnTick(t *testing.T) {
	cmd := &fakeCommander{}
	manual := false
	l := newTestLifecycle(cmd, &manual)
	t0 := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1})
	l.Advance(t0, testBuilder())
	s := uploading(t, l)
	l.OnUploadResult(t0, s.Generation, nil)

	l.Advance(t0.Add(time.Second), testBuilder())
	if _, ok := l.State().(*Uploading); !ok {
		t.Fatal("expected uploading while start pending")
	}
	l.Advance(t0.Add(6*time.Second), testBuilder())
	if _, ok := l.State().(Finished); !ok {
		t.Errorf("expected finished, got %s", l.State().Name())
	}
}

func TestLifecycleStopDiscardsStaleResults(t *testing.T) {
	now := time.Unix(1000, 0)

	tests := []struct {
		name  string
		setup func(l *Lifecycle) uint64
	}{
		{"uploading", func(l *Lifecycle) uint64 {
			return l.State().(*Uploading).Generation
		}},
		{"starting", func(l *Lifecycle) uint64 {
			g := l.State().(*Uploading).Generation
			l.OnUploadResult(now, g, nil)
			return g
		}},
		{"in progress", func(l *Lifecycle) uint64 {
			g := l.State().(*Uploading).Generation
			l.OnUploadResult(now, g, nil)
			l.OnStartResult(now, g, nil)
			return g
		}},
	}

	for _, tt := range tests {
		cmd := &fakeCommander{}
		manual := false
		l := newTestLifecycle(cmd, &manual)
		l.Buffer().Append(geo.LocalWaypoint{X: 1})
		l.Advance(now, testBuilder())
		g := tt.setup(l)

		l.Buffer().Append(geo.LocalWaypoint{X: 5})
		token, _ := l.Stop()

		if _, ok := l.State().(Finished); !ok {
			t.Errorf("%s: expected finished, got %s", tt.name, l.State().Name())
		}
		if !l.Buffer().IsEmpty() {
			t.Errorf("%s: expected empty buffer", tt.name)
		}
		if len(cmd.cleanups) != 1 || cmd.cleanups[0] != token {
			t.Errorf("%s: expected cleanup with token %d, got %v", tt.name, token, cmd.cleanups)
		}

		starts := len(cmd.starts)
		if events := l.OnUploadResult(now, g, nil); events != nil {
			t.Errorf("%s: expected stale upload result ignored, got %+v", tt.name, events)
		}
		if events := l.OnStartResult(now, g, nil); events != nil {
			t.Errorf("%s: expected stale start result ignored, got %+v", tt.name, events)
		}
		if _, ok := l.State().(Finished); !ok || len(cmd.starts) != starts {
			t.Errorf("%s: expected stale results to be no-ops", tt.name)
		}
	}
}

func TestLifecycleManualOverrideBlocksUpload(t *testing.T) {
	cmd := &fakeCommander{}
	manual := true
	l := newTestLifecycle(cmd, &manual)
	now := time.Unix(1000, 0)

	l.Buffer().Append(geo.LocalWaypoint{X: 1})
	events := l.Advance(now, testBuilder())
	if len(cmd.uploads) != 0 {
		t.Errorf("expected no upload under manual override, got %d", len(cmd.uploads))
	}
	found := false
	for _, e := range events {
		if f, ok := e.(UploadAttemptFailed); ok && f.Err == ErrManualOverride {
			found = true
		}
	}
	if !found {
		t.Errorf("expected manual override failure, got %+v", events)
	}
}
