package layout

// ResourceCode is the station's integer identifier for a tray or consumable
// kind. Values are carried over unchanged from the vendor's resource-code
// table (config/constants.py ResourceCode) since they are wire constants,
// not something this implementation is free to renumber.
type ResourceCode int

// Tray resource codes.
const (
	ReactionTubeTray2ML        ResourceCode = 201000726
	TestTubeMagnetTray2ML      ResourceCode = 201000711
	ReactionSealCapTray        ResourceCode = 201000712
	FlashFilterInnerBottleTray ResourceCode = 201000727
	FlashFilterOuterBottleTray ResourceCode = 201000728
	TipTray50UL                ResourceCode = 201000815
	TipTray1ML                 ResourceCode = 201000731
	TipTray5ML                 ResourceCode = 201000512
	PowderBucketTray30ML       ResourceCode = 201000600
	ReagentBottleTray2ML       ResourceCode = 201000730
	ReagentBottleTray8ML       ResourceCode = 201000502
	ReagentBottleTray40ML      ResourceCode = 201000503
	ReagentBottleTray125ML     ResourceCode = 220000023
)

// Consumable (non-tray) resource codes.
const (
	ReactionTube2ML        ResourceCode = 551000502
	TestTubeMagnet2ML      ResourceCode = 220000322
	ReactionSealCap        ResourceCode = 211009427
	FlashFilterInnerBottle ResourceCode = 220000320
	FlashFilterOuterBottle ResourceCode = 220000321
	Tip1ML                 ResourceCode = 220000308
	Tip5ML                 ResourceCode = 214000037
	Tip50UL                ResourceCode = 220000304
	PowderBucket30ML       ResourceCode = 201000816
	ReagentBottle2ML       ResourceCode = 502000353
	ReagentBottle8ML       ResourceCode = 220000005
	ReagentBottle40ML      ResourceCode = 220000092
	ReagentBottle125ML     ResourceCode = 220000008
)

// MediaPhase classifies whether a tray holds weighable, pipettable, or
// countable-only media.
type MediaPhase string

const (
	MediaWeight MediaPhase = "weight"
	MediaVolume MediaPhase = "volume"
	MediaNone   MediaPhase = "none"
)

// TraySpec is the static, read-only description of one tray kind.
type TraySpec struct {
	Code        ResourceCode
	DisplayName string
	Grid        Grid
	MediaCode   ResourceCode
	MediaPhase  MediaPhase
	DefaultUnit string
}

// BuiltinTraySpecs is the default tray-geometry table, grounded on
// config/constants.py's TraySpec class. Row/column counts there are given
// as (col, row) pairs; Grid here keeps the same (Cols, Rows) order.
var BuiltinTraySpecs = map[ResourceCode]TraySpec{
	ReagentBottleTray2ML: {
		Code: ReagentBottleTray2ML, DisplayName: "2 mL reagent bottle tray",
		Grid: Grid{Cols: 8, Rows: 6}, MediaCode: ReagentBottle2ML, MediaPhase: MediaVolume, DefaultUnit: "mL",
	},
	ReagentBottleTray8ML: {
		Code: ReagentBottleTray8ML, DisplayName: "8 mL reagent bottle tray",
		Grid: Grid{Cols: 4, Rows: 3}, MediaCode: ReagentBottle8ML, MediaPhase: MediaVolume, DefaultUnit: "mL",
	},
	ReagentBottleTray40ML: {
		Code: ReagentBottleTray40ML, DisplayName: "40 mL reagent bottle tray",
		Grid: Grid{Cols: 3, Rows: 2}, MediaCode: ReagentBottle40ML, MediaPhase: MediaVolume, DefaultUnit: "mL",
	},
	ReagentBottleTray125ML: {
		Code: ReagentBottleTray125ML, DisplayName: "125 mL reagent bottle tray",
		Grid: Grid{Cols: 2, Rows: 1}, MediaCode: ReagentBottle125ML, MediaPhase: MediaVolume, DefaultUnit: "mL",
	},
	ReactionTubeTray2ML: {
		Code: ReactionTubeTray2ML, DisplayName: "2 mL reaction tube tray",
		Grid: Grid{Cols: 6, Rows: 4}, MediaCode: ReactionTube2ML, MediaPhase: MediaNone, DefaultUnit: "",
	},
	TestTubeMagnetTray2ML: {
		Code: TestTubeMagnetTray2ML, DisplayName: "2 mL test tube magnet tray",
		Grid: Grid{Cols: 6, Rows: 4}, MediaCode: TestTubeMagnet2ML, MediaPhase: MediaNone, DefaultUnit: "",
	},
	ReactionSealCapTray: {
		Code: ReactionSealCapTray, DisplayName: "reaction seal cap tray",
		Grid: Grid{Cols: 1, Rows: 1}, MediaCode: ReactionSealCap, MediaPhase: MediaNone, DefaultUnit: "",
	},
	FlashFilterInnerBottleTray: {
		Code: FlashFilterInnerBottleTray, DisplayName: "flash filter inner bottle tray",
		Grid: Grid{Cols: 8, Rows: 6}, MediaCode: FlashFilterInnerBottle, MediaPhase: MediaNone, DefaultUnit: "",
	},
	FlashFilterOuterBottleTray: {
		Code: FlashFilterOuterBottleTray, DisplayName: "flash filter outer bottle tray",
		Grid: Grid{Cols: 8, Rows: 6}, MediaCode: FlashFilterOuterBottle, MediaPhase: MediaNone, DefaultUnit: "",
	},
	TipTray50UL: {
		Code: TipTray50UL, DisplayName: "50 μL tip tray",
		Grid: Grid{Cols: 12, Rows: 8}, MediaCode: Tip50UL, MediaPhase: MediaNone, DefaultUnit: "",
	},
	TipTray1ML: {
		Code: TipTray1ML, DisplayName: "1 mL tip tray",
		Grid: Grid{Cols: 12, Rows: 8}, MediaCode: Tip1ML, MediaPhase: MediaNone, DefaultUnit: "",
	},
	TipTray5ML: {
		Code: TipTray5ML, DisplayName: "5 mL tip tray",
		Grid: Grid{Cols: 6, Rows: 4}, MediaCode: Tip5ML, MediaPhase: MediaNone, DefaultUnit: "",
	},
	PowderBucketTray30ML: {
		Code: PowderBucketTray30ML, DisplayName: "30 mL powder bucket tray",
		Grid: Grid{Cols: 1, Rows: 2}, MediaCode: PowderBucket30ML, MediaPhase: MediaWeight, DefaultUnit: "mg",
	},
}

// ContainerDeadVolumeML maps a reagent-bottle tray code to its dead-volume
// padding (mL), per §4.5.
var ContainerDeadVolumeML = map[ResourceCode]float64{
	ReagentBottleTray2ML:   0.1,
	ReagentBottleTray8ML:   1.0,
	ReagentBottleTray40ML:  4.0,
	ReagentBottleTray125ML: 14.0,
}

// PowderDeadWeightMG is the flat dead-weight padding (mg) added to any
// reagent with solid demand, per §4.5.
const PowderDeadWeightMG = 20.0

// TrayToConsumable maps a tray resource code to the consumable resource
// code it dispenses, used by the analyzer's supply-aggregation pass.
var TrayToConsumable = map[ResourceCode]ResourceCode{
	ReactionTubeTray2ML:        ReactionTube2ML,
	TestTubeMagnetTray2ML:      TestTubeMagnet2ML,
	ReactionSealCapTray:        ReactionSealCap,
	FlashFilterInnerBottleTray: FlashFilterInnerBottle,
	FlashFilterOuterBottleTray: FlashFilterOuterBottle,
	TipTray50UL:                Tip50UL,
	TipTray1ML:                 Tip1ML,
	TipTray5ML:                 Tip5ML,
	PowderBucketTray30ML:       PowderBucket30ML,
}
