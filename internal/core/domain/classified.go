package domain

type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
	Tier3 Tier = 3
)

// ClassifiedRecord is an EncodedRecord enriched by the classification engine.
type ClassifiedRecord struct {
	Record     EncodedRecord `json:"record"`
	Activities int           `json:"activities"`

	Tier        Tier     `json:"tier"`
	Relevant    bool     `json:"relevant"`
	Categories  []string `json:"categories"`
	OrgType     string   `json:"org_type"`
	CrossBorder bool     `json:"cross_border"`
	Pitch       string   `json:"pitch"`

	SpecialMarket bool `json:"special_market"`
	HighVolume    bool `json:"high_volume"`
	Commendation  bool `json:"commendation"`
}

func (c ClassifiedRecord) Name() string     { return c.Record[FieldName] }
func (c ClassifiedRecord) SourceID() string { return c.Record[FieldSourceID] }

// CountEntry is one row of a ranked breakdown.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// RunSummary aggregates a finished pipeline run.
type RunSummary struct {
	RunID         string       `json:"run_id"`
	Total         int          `json:"total"`
	Chunks        int          `json:"chunks"`
	TierCounts    map[Tier]int `json:"tier_counts"`
	Relevant      int          `json:"relevant"`
	SpecialMarket int          `json:"special_market"`
	HighVolume    int          `json:"high_volume"`
	TopStates     []CountEntry `json:"top_states"`
	ByType        []CountEntry `json:"by_type"`
	WithContact   int          `json:"with_contact"`
	WithWebsite   int          `json:"with_website"`
}
