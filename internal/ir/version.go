package ir

// Version constants for the record form and the translator.
const (
	// RecordVersion is the version of the neutral record schema.
	RecordVersion = "1"

	// TranslatorVersion is the querybridge version.
	TranslatorVersion = "0.1.0"
)
