package domain

// KeywordGroup labels a set of case-insensitive substrings.
type KeywordGroup struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// CodeRule maps taxonomy slugs containing every Match fragment to Code.
type CodeRule struct {
	Match []string `yaml:"match"`
	Code  string   `yaml:"code"`
}

// EncodingRules drive the record encoder.
type EncodingRules struct {
	TypeCodes    []CodeRule `yaml:"type_codes"`
	StatusCodes  []CodeRule `yaml:"status_codes"`
	OtherCode    string     `yaml:"other_code"`
	OtherFormat  string     `yaml:"other_format"`
	JointYesSlug string     `yaml:"joint_yes_slug"`
}

// ClassificationRules drive tiering and enrichment.
type ClassificationRules struct {
	Tier1Activities      int      `yaml:"tier1_activities"`
	Tier2Activities      int      `yaml:"tier2_activities"`
	HighVolumeActivities int      `yaml:"high_volume_activities"`
	CommendationCodes    []string `yaml:"commendation_codes"`
	PrimaryTypeCode      string   `yaml:"primary_type_code"`

	SpecialRegion      string   `yaml:"special_region"`
	SpecialMarketLabel string   `yaml:"special_market_label"`
	TargetCities       []string `yaml:"target_cities"`
	OrgKeywords        []string `yaml:"org_keywords"`

	HomeCountry           string   `yaml:"home_country"`
	InternationalKeywords []string `yaml:"international_keywords"`

	Categories   []KeywordGroup `yaml:"categories"`
	OrgTypes     []KeywordGroup `yaml:"org_types"`
	DefaultOrg   string         `yaml:"default_org_type"`
	DefaultPitch string         `yaml:"default_pitch"`
}

// Rules is the full rule set loaded from the rules file.
type Rules struct {
	Encoding       EncodingRules       `yaml:"encoding"`
	Classification ClassificationRules `yaml:"classification"`
}
