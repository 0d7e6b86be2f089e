// Package structural is the contract with the external structural-analysis
// engine: three modules (hazard, response, damage) that take and return flat
// numeric arrays. Transports carry JSON; this package does not analyse.
package structural

import "github.com/greenresilience/orchestration/engine/domain"

// Module names, used in exec arguments, NATS subjects and metrics labels.
const (
	ModuleHazard   = "hazard"
	ModuleResponse = "response"
	ModuleDamage   = "damage"
)

// Defaults the engine was calibrated with.
const (
	DefaultIntervals = 8       // intensity levels analysed
	DefaultSoilClass = "B"     // site soil class
	DefaultUnits     = 3       // SAP2000 kip-in-F
	DefaultGravity   = 386.0   // in/s^2
	DefaultFrameType = "Moment"
)

// Length units of HazardInput.Elevations.
const (
	UnitFeet   = "ft"
	UnitInches = "in"
)

// HazardInput drives modal pre-analysis and equivalent lateral forces.
// Elevations are in the engine's length unit.
type HazardInput struct {
	ModelPath     string       `json:"model_path"`
	Units         int          `json:"units"`
	Elevations    []float64    `json:"elevations"`
	ElevationUnit string       `json:"elevation_unit"` // UnitFeet or UnitInches
	PGA           domain.Curve `json:"pga"`
	SA1P0         domain.Curve `json:"sa1"`
	SA0P2         domain.Curve `json:"sa02"`
	SoilClass     string       `json:"soil_site_class"`
	Intervals     int          `json:"num_int"`
}

// HazardOutput is the modal analysis result and connectivity data.
type HazardOutput struct {
	FrameObjNames     []string    `json:"frame_obj_names"`
	JointCoords       [][]float64 `json:"joint_coords"`
	FrameJointConn    [][]float64 `json:"frame_joint_conn"`
	FloorConn         [][]float64 `json:"floor_conn"`
	WallConn          [][]float64 `json:"wall_conn"`
	T1                []float64   `json:"t1"`
	Hj                []float64   `json:"hj"`
	MassFloor         []float64   `json:"mass_floor"`
	Weight            float64     `json:"weight"`
	ResponseModelPath string      `json:"file_path_response"`
	LFM               []float64   `json:"lfm"`
	Dl                []float64   `json:"dl"`
	Sax               []float64   `json:"sax"`
	Say               []float64   `json:"say"`
	Fj                [][]float64 `json:"fj"`
}

// ResponseInput applies the lateral forces to the structure.
type ResponseInput struct {
	FrameObjNames     []string     `json:"frame_obj_names"`
	Units             int          `json:"units"`
	ResponseModelPath string       `json:"file_path_response"`
	Elevations        []float64    `json:"elevations"`
	Fj                [][]float64  `json:"fj"`
	Intervals         int          `json:"num_int"`
	T1                []float64    `json:"t1"`
	Hj                []float64    `json:"hj"`
	Gravity           float64      `json:"g"`
	PGA               domain.Curve `json:"pga"`
	SA1P0             domain.Curve `json:"sa1"`
	LFM               []float64    `json:"lfm"`
	FrameType         string       `json:"frame_type"`
}

// ResponseOutput holds displacements, corrected demands and dispersions.
type ResponseOutput struct {
	XDisp           [][]float64 `json:"x_disp"`
	YDisp           [][]float64 `json:"y_disp"`
	MeanDriftRatios [][]float64 `json:"mean_drift_ratios"`
	MeanAccel       [][]float64 `json:"mean_accel"`
	BSD             []float64   `json:"b_sd"`
	BFA             []float64   `json:"b_fa"`
	BFV             []float64   `json:"b_fv"`
	BRD             []float64   `json:"b_rd"`
}

// DamageInput turns demands into losses.
type DamageInput struct {
	MeanDriftRatios [][]float64 `json:"mean_drift_ratios"`
	MeanAccel       [][]float64 `json:"mean_accel"`
	BSD             []float64   `json:"b_sd"`
	BFA             []float64   `json:"b_fa"`
	BFV             []float64   `json:"b_fv"`
	BRD             []float64   `json:"b_rd"`
	Intervals       int         `json:"num_int"`
}

// DamageOutput is the repair cost estimate.
type DamageOutput struct {
	Cost []float64 `json:"cost"`
}

// NewResponseInput carries the hazard results forward.
func NewResponseInput(h HazardInput, out HazardOutput, frameType string, gravity float64) ResponseInput {
	return ResponseInput{
		FrameObjNames:     out.FrameObjNames,
		Units:             h.Units,
		ResponseModelPath: out.ResponseModelPath,
		Elevations:        h.Elevations,
		Fj:                out.Fj,
		Intervals:         h.Intervals,
		T1:                out.T1,
		Hj:                out.Hj,
		Gravity:           gravity,
		PGA:               h.PGA,
		SA1P0:             h.SA1P0,
		LFM:               out.LFM,
		FrameType:         frameType,
	}
}

// NewDamageInput carries the response results forward.
func NewDamageInput(r ResponseOutput, intervals int) DamageInput {
	return DamageInput{
		MeanDriftRatios: r.MeanDriftRatios,
		MeanAccel:       r.MeanAccel,
		BSD:             r.BSD,
		BFA:             r.BFA,
		BFV:             r.BFV,
		BRD:             r.BRD,
		Intervals:       intervals,
	}
}
