package labs

// Canonical lab keys, as the extraction prompt asks the model to emit them.
const (
	Hemoglobin          = "Hemoglobin required"
	Hematocrit          = "Hematocrit required"
	PlateletCount       = "Platelet count required"
	WhiteBloodCell      = "White blood cell required"
	ANC                 = "Absolute neutrophil count (ANC) or absolute granulocyte count required"
	Creatinine          = "Creatinine required"
	CreatinineClearance = "Creatinine clearance or GFR required"
	AST                 = "AST required"
	ALT                 = "ALT required"
	Albumin             = "Albumin required"
	AlkalinePhosphatase = "Alkaline phosphatase required"
	Bilirubin           = "Bilirubin required"
)

// CanonicalNames is the fixed set of twelve tracked labs in report order.
var CanonicalNames = []string{
	Hemoglobin,
	Hematocrit,
	PlateletCount,
	WhiteBloodCell,
	ANC,
	Creatinine,
	CreatinineClearance,
	AST,
	ALT,
	Albumin,
	AlkalinePhosphatase,
	Bilirubin,
}

var baseUnits = map[string]string{
	ANC:                 "x10^9/L",
	Hemoglobin:          "g/L",
	PlateletCount:       "x10^9/L",
	CreatinineClearance: "ml/min",
	Bilirubin:           "xULN",
}

// Unit returns the base unit for a lab key, if it has one.
func Unit(name string) (string, bool) {
	u, ok := baseUnits[name]
	return u, ok
}

// DatabaseReadyName appends " (<unit>)" to unit-bearing lab keys.
func DatabaseReadyName(name string) string {
	if u, ok := baseUnits[name]; ok {
		return name + " (" + u + ")"
	}
	return name
}
