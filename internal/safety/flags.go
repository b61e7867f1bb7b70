package safety

import "sync/atomic"

// Flags holds the vehicle status bits. Each bit is written by one ingestion
// path and can be read at any time without blocking.
type Flags struct {
	initialized      atomic.Bool
	gpsOriginSet     atomic.Bool
	armed            atomic.Bool
	landed           atomic.Bool
	manualOverride   atomic.Bool
	landing          atomic.Bool
	takeoffCompleted atomic.Bool

	gettingControlMode atomic.Bool
	gettingLandSensor  atomic.Bool
	gettingOdom        atomic.Bool
}

func NewFlags() *Flags {
	f := &Flags{}
	f.landed.Store(true)
	return f
}

func (f *Flags) SetInitialized(v bool)        { f.initialized.Store(v) }
func (f *Flags) SetGPSOriginSet(v bool)       { f.gpsOriginSet.Store(v) }
func (f *Flags) SetArmed(v bool)              { f.armed.Store(v) }
func (f *Flags) SetLanded(v bool)             { f.landed.Store(v) }
func (f *Flags) SetManualOverride(v bool)     { f.manualOverride.Store(v) }
func (f *Flags) SetLanding(v bool)            { f.landing.Store(v) }
func (f *Flags) SetTakeoffCompleted(v bool)   { f.takeoffCompleted.Store(v) }
func (f *Flags) SetGettingControlMode(v bool) { f.gettingControlMode.Store(v) }
func (f *Flags) SetGettingLandSensor(v bool)  { f.gettingLandSensor.Store(v) }
func (f *Flags) SetGettingOdom(v bool)        { f.gettingOdom.Store(v) }

func (f *Flags) Initialized() bool        { return f.initialized.Load() }
func (f *Flags) GPSOriginSet() bool       { return f.gpsOriginSet.Load() }
func (f *Flags) Armed() bool              { return f.armed.Load() }
func (f *Flags) Landed() bool             { return f.landed.Load() }
func (f *Flags) ManualOverride() bool     { return f.manualOverride.Load() }
func (f *Flags) Landing() bool            { return f.landing.Load() }
func (f *Flags) TakeoffCompleted() bool   { return f.takeoffCompleted.Load() }
func (f *Flags) GettingControlMode() bool { return f.gettingControlMode.Load() }
func (f *Flags) GettingLandSensor() bool  { return f.gettingLandSensor.Load() }
func (f *Flags) GettingOdom() bool        { return f.gettingOdom.Load() }

// Snapshot copies the gate relevant bits. Bits are read one by one, so the
// copy may mix values from consecutive updates.
func (f *Flags) Snapshot() Snapshot {
	return Snapshot{
		Initialized:      f.initialized.Load(),
		GPSOriginSet:     f.gpsOriginSet.Load(),
		Armed:            f.armed.Load(),
		Landed:           f.landed.Load(),
		ManualOverride:   f.manualOverride.Load(),
		Landing:          f.landing.Load(),
		TakeoffCompleted: f.takeoffCompleted.Load(),
	}
}
