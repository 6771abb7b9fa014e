package config

const (
	DefaultTimeZone = "Europe/Paris"

	// OECD bulk-file endpoints polled by the refresh job.
	DefaultCRSBulkURL      = "https://stats.oecd.org/wbos/fileview2.aspx?IDFile=crs-bulk"
	DefaultCRDFBulkURL     = "https://webfs.oecd.org/climate/RecipientPerspective/CRDF-RP-2012-latest.xlsx"
	DefaultRefreshSchedule = "0 4 * * 1"
	BatchSize              = 1000
)

// Matching policy constants. The tolerance and the implausible-share cutoff
// come from the published methodology and have no documented derivation;
// treat them as recalibratable policy values, not ground truth.
const (
	// DuplicateCommitmentTolerance is the relative difference under which a
	// duplicate match is accepted as the same activity.
	DuplicateCommitmentTolerance = 0.01

	// ImplausibleShareCutoff rejects matches whose claimed climate total
	// exceeds the transaction commitment by more than this factor.
	ImplausibleShareCutoff = 1.1

	// MissingKeyColumnWarnRatio is the missing-value fraction in a join
	// column above which a diagnostic warning is recorded.
	MissingKeyColumnWarnRatio = 0.25

	// CommitmentYearMinCoverage is the population ratio the commitment-date
	// column must reach before the year-relaxed pass substitutes the
	// commitment year for the reporting year.
	CommitmentYearMinCoverage = 0.99
)

// Sentinel values used by the residual aggregator so that aggregate rows
// round-trip through the same schema as project-level rows.
const (
	SentinelAgencyCode    = "0"
	SentinelRecipientCode = "998"
	SentinelPurposeCode   = "99810"
	SentinelProjectID     = "aggregate"
	SentinelProjectTitle  = "Data only reported as commitments"
)

// Rio marker coefficient defaults per methodology preset.
const (
	DefaultSignificantCoefficient = 0.4
	DefaultPrincipalCoefficient   = 1.0
	OECDSignificantCoefficient    = 1.0
	OECDPrincipalCoefficient      = 1.0
)

// ComponentsMarkerCode flags a row whose climate values are pre-quantified
// currency amounts rather than 0/1/2 Rio markers.
const ComponentsMarkerCode = 100

// DefaultRollingWindowYears is the trailing window used when deriving
// multilateral climate-spending shares.
const DefaultRollingWindowYears = 2
