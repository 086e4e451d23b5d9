package config

import (
	"fmt"
	"os"

	"github.com/rgehrsitz/taxcalc/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// InputParser handles parsing of tax rules files
type InputParser struct{}

// NewInputParser creates a new input parser
func NewInputParser() *InputParser {
	return &InputParser{}
}

// LoadFromFile loads a rule set from a YAML file
func (ip *InputParser) LoadFromFile(filename string) (*domain.RuleSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}

	rs, err := ip.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return rs, nil
}

// Parse decodes and validates a rule set from YAML. Jurisdiction codes are
// normalized to upper case and filing status keys to their codes.
func (ip *InputParser) Parse(data []byte) (*domain.RuleSet, error) {
	var raw domain.RuleSet
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	rs, err := normalize(&raw)
	if err != nil {
		return nil, err
	}

	if err := ip.ValidateRuleSet(rs); err != nil {
		return nil, fmt.Errorf("rule set validation failed: %w", err)
	}
	return rs, nil
}

func normalize(raw *domain.RuleSet) (*domain.RuleSet, error) {
	rs := &domain.RuleSet{
		Metadata:      raw.Metadata,
		Jurisdictions: make(map[string]domain.JurisdictionRules, len(raw.Jurisdictions)),
	}
	for code, jr := range raw.Jurisdictions {
		key := string(domain.NewJurisdiction(code))
		if key == "" {
			return nil, fmt.Errorf("empty jurisdiction code")
		}
		if _, dup := rs.Jurisdictions[key]; dup {
			return nil, fmt.Errorf("jurisdiction %s defined more than once", key)
		}
		brackets, err := normalizeStatuses(jr.Brackets)
		if err != nil {
			return nil, fmt.Errorf("jurisdiction %s validation failed: %w", key, err)
		}
		jr.Brackets = brackets
		rs.Jurisdictions[key] = jr
	}
	return rs, nil
}

// normalizeStatuses rekeys bracket tables by canonical filing status code,
// so "s", "single" and "S" all name the same table.
func normalizeStatuses(raw map[domain.FilingStatus][]domain.BracketRule) (map[domain.FilingStatus][]domain.BracketRule, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(map[domain.FilingStatus][]domain.BracketRule, len(raw))
	for name, rules := range raw {
		status, err := domain.ParseFilingStatus(string(name))
		if err != nil {
			return nil, fmt.Errorf("unknown filing status %q", name)
		}
		if _, dup := out[status]; dup {
			return nil, fmt.Errorf("filing status %s defined more than once", status)
		}
		out[status] = rules
	}
	return out, nil
}

// ValidateRuleSet validates a loaded rule set. Bracket contiguity is not
// checked here; the calculator reports it as a diagnostic.
func (ip *InputParser) ValidateRuleSet(rs *domain.RuleSet) error {
	if rs == nil || len(rs.Jurisdictions) == 0 {
		return fmt.Errorf("no jurisdictions provided")
	}

	for _, code := range rs.Codes() {
		jr := rs.Jurisdictions[string(code)]
		if err := ip.validateJurisdiction(&jr); err != nil {
			return fmt.Errorf("jurisdiction %s validation failed: %w", code, err)
		}
	}
	return nil
}

// validateJurisdiction validates one jurisdiction's policy and brackets
func (ip *InputParser) validateJurisdiction(jr *domain.JurisdictionRules) error {
	if !jr.Policy.Valid() {
		return fmt.Errorf("policy must be 'progressive', 'flat_special_income', or 'no_tax', got %q", jr.Policy)
	}

	switch jr.Policy {
	case domain.PolicyProgressive:
		if len(jr.Brackets) == 0 {
			return fmt.Errorf("progressive policy requires brackets")
		}
		if !jr.Rate.IsZero() {
			return fmt.Errorf("rate is only allowed for flat_special_income policy")
		}
		for status, rules := range jr.Brackets {
			if !status.Valid() {
				return fmt.Errorf("unknown filing status %q", status)
			}
			if len(rules) == 0 {
				return fmt.Errorf("filing status %s has no brackets", status)
			}
			for i, r := range rules {
				if err := ip.validateBracket(&r); err != nil {
					return fmt.Errorf("%s bracket %d: %w", status, i, err)
				}
			}
		}

	case domain.PolicyFlatSpecialIncome:
		if err := validateRate(jr.Rate); err != nil {
			return err
		}
		if len(jr.Brackets) > 0 {
			return fmt.Errorf("flat_special_income policy cannot define brackets")
		}

	case domain.PolicyNoTax:
		if len(jr.Brackets) > 0 || !jr.Rate.IsZero() {
			return fmt.Errorf("no_tax policy cannot define a rate or brackets")
		}
	}

	return nil
}

// validateBracket validates a single bracket rule
func (ip *InputParser) validateBracket(r *domain.BracketRule) error {
	if err := validateRate(r.Rate); err != nil {
		return err
	}
	if r.Min.LessThan(decimal.Zero) {
		return fmt.Errorf("min cannot be negative")
	}
	if r.Max != nil && r.Max.LessThan(decimal.Zero) {
		return fmt.Errorf("max cannot be negative")
	}
	return nil
}

func validateRate(rate decimal.Decimal) error {
	if rate.LessThan(decimal.Zero) || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rate must be between 0 and 1, got %s", rate)
	}
	return nil
}

// SaveRuleSet writes a rule set to a YAML file
func SaveRuleSet(rs *domain.RuleSet, filename string) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to encode rule set: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}
