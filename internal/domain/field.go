package domain

// LevelGroup identifies which source dataset (and therefore which point set) a field comes from.
type LevelGroup int

const (
	// LevelSurface is the single-level surface dataset.
	LevelSurface LevelGroup = iota
	// LevelPressure is the 700 hPa pressure-level dataset.
	LevelPressure
	// LevelConvective is the separate most-unstable CAPE dataset.
	LevelConvective
)

// String returns the short group name used in file names and logs.
func (g LevelGroup) String() string {
	switch g {
	case LevelSurface:
		return "sfc"
	case LevelPressure:
		return "pl700"
	case LevelConvective:
		return "mucape"
	default:
		return "unknown"
	}
}

// AccumulationKind selects the temporal reduction policy of a field.
type AccumulationKind int

const (
	// Instantaneous fields use the value at a single sub-step.
	Instantaneous AccumulationKind = iota
	// Accumulated fields are cumulative since initialization and must be differenced.
	Accumulated
)

// UnitConversion converts a reduced field into physical rates.
type UnitConversion int

const (
	// ConvertNone leaves values unchanged.
	ConvertNone UnitConversion = iota
	// ConvertMetresToMMPerHour turns metres per accumulation window into mm/h.
	ConvertMetresToMMPerHour
	// ConvertJoulesToWatts turns J m-2 per accumulation window into W m-2.
	ConvertJoulesToWatts
)

// NormPolicy selects how a field is rescaled to model scale.
type NormPolicy int

const (
	// NormLog applies log10(1 + x) to mean and spread.
	NormLog NormPolicy = iota
	// NormIdentity leaves fields already in [0, 1] untouched.
	NormIdentity
	// NormMeanCentered subtracts the historical mean from the mean channel, then divides both by the historical std.
	NormMeanCentered
	// NormMaxScaled divides by the historical maximum.
	NormMaxScaled
	// NormSymmetric divides by max(max, -min), preserving sign.
	NormSymmetric
)

// String implements fmt.Stringer.
func (p NormPolicy) String() string {
	switch p {
	case NormLog:
		return "log-transform"
	case NormIdentity:
		return "identity"
	case NormMeanCentered:
		return "mean-centered"
	case NormMaxScaled:
		return "max-scaled"
	case NormSymmetric:
		return "symmetric-scaled"
	default:
		return "unknown"
	}
}

// FieldDescriptor is the immutable definition of one forecast field.
type FieldDescriptor struct {
	Name       string // Logical name, also the normalization constants key.
	SourceVar  string // Variable name in the source dataset.
	OutputStem string // Prefix of the regridded variables, e.g. "u700".
	Group      LevelGroup
	LongName   string
	Units      string
	Warning    string // Optional attribute written next to the mean variable.

	Accumulation AccumulationKind
	Conversion   UnitConversion
	NonNegative  bool
	Policy       NormPolicy
}

// MeanVar returns the regridded ensemble mean variable name.
func (f FieldDescriptor) MeanVar() string {
	return f.OutputStem + "_ensemble_mean"
}

// StdVar returns the regridded ensemble standard deviation variable name.
func (f FieldDescriptor) StdVar() string {
	return f.OutputStem + "_ensemble_standard_deviation"
}

// IsAccumulated reports whether the field is a cumulative quantity.
func (f FieldDescriptor) IsAccumulated() bool {
	return f.Accumulation == Accumulated
}

// Fields is the complete field table in model channel order.
var Fields = []FieldDescriptor{
	{
		// The convective energy field is sourced from most-unstable CAPE.
		Name: "cape", SourceVar: "mucape", OutputStem: "cape", Group: LevelConvective,
		LongName: "Convective available potential energy", Units: "J kg**-1",
		Warning:      "WARNING: This is actually most-unstable CAPE (mucape)",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "cp", SourceVar: "cp", OutputStem: "cp", Group: LevelSurface,
		LongName: "Convective precipitation", Units: "m hour**-1",
		Accumulation: Accumulated, Conversion: ConvertMetresToMMPerHour, NonNegative: true, Policy: NormLog,
	},
	{
		Name: "mcc", SourceVar: "mcc", OutputStem: "mcc", Group: LevelSurface,
		LongName: "Medium cloud cover", Units: "(0 - 1)",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormIdentity,
	},
	{
		Name: "sp", SourceVar: "sp", OutputStem: "sp", Group: LevelSurface,
		LongName: "Surface pressure", Units: "Pa",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMeanCentered,
	},
	{
		Name: "ssr", SourceVar: "ssr", OutputStem: "ssr", Group: LevelSurface,
		LongName: "Surface net solar radiation", Units: "J m**-2 s**-1",
		Accumulation: Accumulated, Conversion: ConvertJoulesToWatts, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "t2m", SourceVar: "t2m", OutputStem: "t2m", Group: LevelSurface,
		LongName: "2 metre temperature", Units: "K",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMeanCentered,
	},
	{
		Name: "tciw", SourceVar: "tciw", OutputStem: "tciw", Group: LevelSurface,
		LongName: "Total column cloud ice water", Units: "kg m**-2",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "tclw", SourceVar: "tclw", OutputStem: "tclw", Group: LevelSurface,
		LongName: "Total column cloud liquid water", Units: "kg m**-2",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "tcrw", SourceVar: "tcrw", OutputStem: "tcrw", Group: LevelSurface,
		LongName: "Total column rain water", Units: "kg m**-2",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "tcw", SourceVar: "tcw", OutputStem: "tcw", Group: LevelSurface,
		LongName: "Total column water", Units: "kg m**-2",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "tcwv", SourceVar: "tcwv", OutputStem: "tcwv", Group: LevelSurface,
		LongName: "Total column vertically-integrated water vapour", Units: "kg m**-2",
		Accumulation: Instantaneous, NonNegative: true, Policy: NormMaxScaled,
	},
	{
		Name: "tp", SourceVar: "tp", OutputStem: "tp", Group: LevelSurface,
		LongName: "Total precipitation", Units: "m hour**-1",
		Accumulation: Accumulated, Conversion: ConvertMetresToMMPerHour, NonNegative: true, Policy: NormLog,
	},
	{
		Name: "u700", SourceVar: "u", OutputStem: "u700", Group: LevelPressure,
		LongName: "700 hPa U wind component", Units: "m s**-1",
		Accumulation: Instantaneous, Policy: NormSymmetric,
	},
	{
		Name: "v700", SourceVar: "v", OutputStem: "v700", Group: LevelPressure,
		LongName: "700 hPa V wind component", Units: "m s**-1",
		Accumulation: Instantaneous, Policy: NormSymmetric,
	},
}

// fieldIndex maps logical names to positions in Fields.
var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(Fields))
	for i, f := range Fields {
		m[f.Name] = i
	}
	return m
}()

// LookupField returns the descriptor for a logical field name.
func LookupField(name string) (FieldDescriptor, error) {
	i, ok := fieldIndex[name]
	if !ok {
		return FieldDescriptor{}, &UnknownFieldError{Name: name}
	}
	return Fields[i], nil
}

// FieldsInGroup returns the fields read from one source dataset, in table order.
func FieldsInGroup(g LevelGroup) []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(Fields))
	for _, f := range Fields {
		if f.Group == g {
			out = append(out, f)
		}
	}
	return out
}

// ChannelCount returns the number of model input channels for n fields (mean and spread each).
func ChannelCount(n int) int {
	return 2 * n
}
