package dynamo

// Config holds configuration for the DynamoDB client.
type Config struct {
	// Table is the single table holding every kind. Its partition key is
	// "_kind" and its sort key is "_id", both strings.
	// Default: "strata"
	Table string

	// Indexes maps a field name to a local secondary index whose sort key
	// is that field. Ordering a query by any field other than a kind's
	// single string unique key requires an entry here.
	Indexes map[string]string

	// RejectDuplicates makes Create fail with store.ErrAlreadyExists when
	// the id is taken. By default Create overwrites.
	RejectDuplicates bool

	// TestMode permits Flush. Enable it only against DynamoDB Local or a
	// throwaway table.
	TestMode bool

	// ScanSegments is the number of parallel scan segments Flush uses.
	// Default: 1
	// Max: 64
	ScanSegments int
}

// DefaultConfig returns a configuration for the "strata" table.
func DefaultConfig() Config {
	return Config{
		Table:        "strata",
		ScanSegments: 1,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "strata"
	}
	if c.ScanSegments < 1 {
		c.ScanSegments = 1
	}
	if c.ScanSegments > 64 {
		c.ScanSegments = 64
	}
}
