package config

import (
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/provider-intel/internal/core/domain"
)

// DefaultRules returns the built-in rule set used when no rules file is configured.
func DefaultRules() domain.Rules {
	return domain.Rules{
		Encoding: domain.EncodingRules{
			TypeCodes: []domain.CodeRule{
				{Match: []string{"joint"}, Code: "J"},
				{Match: []string{"state"}, Code: "S"},
				{Match: []string{"accme"}, Code: "A"},
				{Match: []string{"accredited"}, Code: "A"},
			},
			StatusCodes: []domain.CodeRule{
				{Match: []string{"joint", "commendation"}, Code: "JC"},
				{Match: []string{"commendation"}, Code: "C"},
				{Match: []string{"probation"}, Code: "X"},
				{Match: []string{"provisional"}, Code: "P"},
				{Match: []string{"joint"}, Code: "JA"},
				{Match: []string{"accredit"}, Code: "A"},
			},
			OtherCode:    "O",
			OtherFormat:  "Other",
			JointYesSlug: "yes",
		},
		Classification: domain.ClassificationRules{
			Tier1Activities:      100,
			Tier2Activities:      20,
			HighVolumeActivities: 100,
			CommendationCodes:    []string{"C", "JC"},
			PrimaryTypeCode:      "A",

			SpecialRegion:      "PR",
			SpecialMarketLabel: "Spanish-language market",
			TargetCities:       []string{"miami", "san antonio", "los angeles", "phoenix", "el paso", "tucson", "albuquerque"},
			OrgKeywords:        []string{"society", "association", "academy", "college"},

			HomeCountry:           "USA",
			InternationalKeywords: []string{"international", "global", "world"},

			Categories: []domain.KeywordGroup{
				{Name: "Psychiatry", Keywords: []string{"psychiatr"}},
				{Name: "Behavioral Health", Keywords: []string{"behavioral", "mental health", "psycholog"}},
				{Name: "Addiction Medicine", Keywords: []string{"addiction", "substance use", "recovery"}},
				{Name: "Neurology", Keywords: []string{"neurolog", "neuroscience", "brain"}},
				{Name: "Pediatrics", Keywords: []string{"pediatric", "children", "child health"}},
			},
			OrgTypes: []domain.KeywordGroup{
				{Name: "Professional Society", Keywords: []string{"society", "association", "academy", "college of"}},
				{Name: "Academic Medical Center", Keywords: []string{"university", "school of medicine", "academic", "medical school"}},
				{Name: "Hospital/Health System", Keywords: []string{"hospital", "health system", "medical center", "healthcare", "health care", "clinic"}},
				{Name: "Government/Public Health", Keywords: []string{"department of", "public health", "veterans", "county", "state of", "government"}},
				{Name: "Education/CME Company", Keywords: []string{"education", "cme", "learning", "institute", "communications", "medscape"}},
			},
			DefaultOrg:   "Other",
			DefaultPitch: "General CME provider",
		},
	}
}

// LoadRules reads a YAML rules file on top of DefaultRules. An empty path yields the defaults.
// Environment variables in the file are expanded before parsing.
func LoadRules(path string) (domain.Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("read rules file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &rules); err != nil {
		return domain.Rules{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := ValidateRules(rules); err != nil {
		return domain.Rules{}, fmt.Errorf("validate rules file %s: %w", path, err)
	}
	return rules, nil
}

func ValidateRules(rules domain.Rules) error {
	enc := rules.Encoding
	if err := validation.ValidateStruct(&enc,
		validation.Field(&enc.OtherCode, validation.Required),
		validation.Field(&enc.OtherFormat, validation.Required),
		validation.Field(&enc.JointYesSlug, validation.Required),
		validation.Field(&enc.TypeCodes, validation.Each(validation.By(validateCodeRule))),
		validation.Field(&enc.StatusCodes, validation.Each(validation.By(validateCodeRule))),
	); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	cls := rules.Classification
	if err := validation.ValidateStruct(&cls,
		validation.Field(&cls.Tier1Activities, validation.Required, validation.Min(1)),
		validation.Field(&cls.Tier2Activities, validation.Required, validation.Min(1), validation.Max(cls.Tier1Activities)),
		validation.Field(&cls.HighVolumeActivities, validation.Required, validation.Min(1)),
		validation.Field(&cls.HomeCountry, validation.Required),
		validation.Field(&cls.DefaultOrg, validation.Required),
		validation.Field(&cls.DefaultPitch, validation.Required),
		validation.Field(&cls.Categories, validation.Each(validation.By(validateKeywordGroup))),
		validation.Field(&cls.OrgTypes, validation.Each(validation.By(validateKeywordGroup))),
	); err != nil {
		return fmt.Errorf("classification: %w", err)
	}
	return nil
}

func validateCodeRule(value any) error {
	rule, ok := value.(domain.CodeRule)
	if !ok {
		return fmt.Errorf("unexpected code rule type %T", value)
	}
	if rule.Code == "" || len(rule.Match) == 0 {
		return fmt.Errorf("code rule needs code and at least one match fragment")
	}
	return nil
}

func validateKeywordGroup(value any) error {
	group, ok := value.(domain.KeywordGroup)
	if !ok {
		return fmt.Errorf("unexpected keyword group type %T", value)
	}
	if group.Name == "" || len(group.Keywords) == 0 {
		return fmt.Errorf("keyword group needs a name and keywords")
	}
	return nil
}
