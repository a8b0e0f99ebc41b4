package indicator

import "strings"

const (
	// DateLayout is the day format used for FirstSeen.
	DateLayout = "2006-01-02"

	// Unknown fills metadata the source did not provide.
	Unknown = "Unknown"

	// DefaultClassification is used when a source gives no family or signature.
	DefaultClassification = "Malware.Generic"
)

// Record is an indicator together with where it came from and what the source said about it.
type Record struct {
	Indicator
	Source         string `json:"source"`
	Classification string `json:"classification"`
	Name           string `json:"name"`
	DetectionRate  string `json:"detection_rate"`
	FirstSeen      string `json:"first_seen"`
	FileType       string `json:"file_type"`
	AdditionalInfo string `json:"additional_info"`
}

// NewRecord fills the defaults every record carries: the dotted name derived
// from the classification, "Unknown" detection rate and file type, and today
// as first seen.
func NewRecord(ind Indicator, source, classification, today string) Record {
	if classification == "" {
		classification = DefaultClassification
	}
	return Record{
		Indicator:      ind,
		Source:         source,
		Classification: classification,
		Name:           DottedName(classification),
		DetectionRate:  Unknown,
		FirstSeen:      today,
		FileType:       Unknown,
	}
}

// DottedName replaces whitespace runs with dots: "Agent Tesla" -> "Agent.Tesla".
func DottedName(classification string) string {
	return strings.Join(strings.Fields(classification), ".")
}
