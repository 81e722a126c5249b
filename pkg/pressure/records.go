package pressure

// Records are produced fresh by each calculation and never modified.
// Losses are in Pa, flows in m³/s, lengths in m.

// SegmentRecord is the loss of a straight segment.
type SegmentRecord struct {
	ID        string
	Flow      float64
	Diameter  float64
	Length    float64
	Friction  float64 // Hazen-Williams loss over Length
	Elevation float64 // hydrostatic loss of the rise, 0 unless elevation is modelled
}

// Loss returns the total loss across the segment.
func (r SegmentRecord) Loss() float64 { return r.Friction + r.Elevation }

// ComponentID implements [fitting.LossRecord].
func (r SegmentRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r SegmentRecord) PortLoss(port int) (float64, bool) { return twoPort(port, r.Loss()) }

// ElbowRecord is the loss of an elbow.
type ElbowRecord struct {
	ID               string
	Flow             float64
	Diameter         float64
	EquivalentLength float64
	Loss             float64
}

// ComponentID implements [fitting.LossRecord].
func (r ElbowRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r ElbowRecord) PortLoss(port int) (float64, bool) { return twoPort(port, r.Loss) }

// WyeRecord holds the loss terms of a wye. ZLoss is the local loss of the
// through run and ZLossBranchToTrunk the local loss of turning into the side
// outlet, each on its own outlet's flow and diameter. The pipe losses cover the stubs between each port and the fitting
// origin.
type WyeRecord struct {
	ID                 string
	Flow               float64 // trunk side
	FlowMain           float64
	FlowBranch         float64
	ZLoss              float64
	ZLossBranchToTrunk float64
	PipeLossTrunk      float64
	PipeLossMain       float64
	PipeLossBranch     float64
}

// MainLoss returns the loss from the trunk-side port to the main outlet.
func (r WyeRecord) MainLoss() float64 { return r.PipeLossTrunk + r.ZLoss + r.PipeLossMain }

// BranchLoss returns the loss from the trunk-side port to the side outlet.
func (r WyeRecord) BranchLoss() float64 {
	return r.PipeLossTrunk + r.ZLossBranchToTrunk + r.PipeLossBranch
}

// ComponentID implements [fitting.LossRecord].
func (r WyeRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r WyeRecord) PortLoss(port int) (float64, bool) {
	switch port {
	case 0:
		return 0, true
	case 1:
		return r.MainLoss(), true
	case 2:
		return r.BranchLoss(), true
	}
	return 0, false
}

// CrossRecord holds the loss terms of a cross: a through run and two side
// outlets.
type CrossRecord struct {
	ID            string
	Flow          float64
	FlowMain      float64
	FlowLeft      float64
	FlowRight     float64
	ZLoss         float64
	ZLossLeft     float64
	ZLossRight    float64
	PipeLossTrunk float64
	PipeLossMain  float64
	PipeLossLeft  float64
	PipeLossRight float64
}

// ComponentID implements [fitting.LossRecord].
func (r CrossRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r CrossRecord) PortLoss(port int) (float64, bool) {
	switch port {
	case 0:
		return 0, true
	case 1:
		return r.PipeLossTrunk + r.ZLoss + r.PipeLossMain, true
	case 2:
		return r.PipeLossTrunk + r.ZLossLeft + r.PipeLossLeft, true
	case 3:
		return r.PipeLossTrunk + r.ZLossRight + r.PipeLossRight, true
	}
	return 0, false
}

// ReducerRecord is the loss of a reducer, taken on its smaller diameter.
type ReducerRecord struct {
	ID               string
	Flow             float64
	Diameter         float64
	EquivalentLength float64
	Loss             float64
}

// ComponentID implements [fitting.LossRecord].
func (r ReducerRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r ReducerRecord) PortLoss(port int) (float64, bool) { return twoPort(port, r.Loss) }

// CouplerRecord is the loss of a coupler.
type CouplerRecord struct {
	ID   string
	Flow float64
	Loss float64
}

// ComponentID implements [fitting.LossRecord].
func (r CouplerRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r CouplerRecord) PortLoss(port int) (float64, bool) { return twoPort(port, r.Loss) }

// TerminalRecord is the outlet loss of a terminal. The trunk has none.
type TerminalRecord struct {
	ID       string
	Flow     float64
	Diameter float64
	Trunk    bool
	Loss     float64
}

// ComponentID implements [fitting.LossRecord].
func (r TerminalRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord] for the terminal's only port.
func (r TerminalRecord) PortLoss(port int) (float64, bool) {
	if port != 0 {
		return 0, false
	}
	return r.Loss, true
}

// ManifoldRecord holds the loss to each branch port of a manifold.
// BranchLosses is indexed by port; index 0 is the trunk side and is 0.
type ManifoldRecord struct {
	ID           string
	Flow         float64
	TrunkLength  float64
	BranchLosses []float64
}

// ComponentID implements [fitting.LossRecord].
func (r ManifoldRecord) ComponentID() string { return r.ID }

// PortLoss implements [fitting.LossRecord].
func (r ManifoldRecord) PortLoss(port int) (float64, bool) {
	if port < 0 || port >= len(r.BranchLosses) {
		return 0, false
	}
	return r.BranchLosses[port], true
}

func twoPort(port int, loss float64) (float64, bool) {
	switch port {
	case 0:
		return 0, true
	case 1:
		return loss, true
	}
	return 0, false
}
