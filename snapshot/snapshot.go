// Package snapshot defines the structured product record the extraction loop
// populates, plus the JSON Schema handed to the model as its response format.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContactInfo holds sales and support contact details.
type ContactInfo struct {
	PhoneNumber  string `json:"phone_number,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	SupportEmail string `json:"support_email,omitempty"`
	Address      string `json:"address,omitempty"`
}

// SocialLinks holds the company's social media profile URLs.
type SocialLinks struct {
	LinkedIn string `json:"linkedin,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Facebook string `json:"facebook,omitempty"`
}

// Feature is one product capability.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PricingPlan is one pricing tier.
type PricingPlan struct {
	Plan        string   `json:"plan"`
	Entity      string   `json:"entity,omitempty"`
	Amount      string   `json:"amount,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Period      string   `json:"period,omitempty"`
	Description []string `json:"description,omitempty"`
	IsFree      *bool    `json:"is_free,omitempty"`
}

// PricingInfo groups the pricing overview with the individual tiers.
type PricingInfo struct {
	Overview     string        `json:"overview,omitempty"`
	PricingURL   string        `json:"pricing_url,omitempty"`
	PricingPlans []PricingPlan `json:"pricing_plans,omitempty"`
}

// DeploymentOption names one deployment type (Cloud, On-Premise, Web-Based).
type DeploymentOption struct {
	Type string `json:"type"`
}

// SupportOption names one support channel (Email, Chat, Phone, Knowledge Base).
type SupportOption struct {
	Type string `json:"type"`
}

// CompanyInfo holds company background and history.
type CompanyInfo struct {
	Overview       string   `json:"overview,omitempty"`
	FoundingStory  string   `json:"founding_story,omitempty"`
	FounderNames   []string `json:"founder_names,omitempty"`
	FundingInfo    string   `json:"funding_info,omitempty"`
	Acquisitions   string   `json:"acquisitions,omitempty"`
	GlobalPresence []string `json:"global_presence,omitempty"`
	CompanyCulture string   `json:"company_culture,omitempty"`
	Community      string   `json:"community,omitempty"`
	GrowthStory    string   `json:"growth_story,omitempty"`
	Valuation      string   `json:"valuation,omitempty"`
}

// Integration is one third-party integration partner.
type Integration struct {
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Logo    string `json:"logo,omitempty"`
}

// ReviewSummary aggregates sentiment from review platforms.
type ReviewSummary struct {
	Strengths           []string `json:"strengths,omitempty"`
	StrengthsParagraph  string   `json:"strengths_paragraph,omitempty"`
	Weaknesses          []string `json:"weaknesses,omitempty"`
	WeaknessesParagraph string   `json:"weaknesses_paragraph,omitempty"`
	OverallRating       *float64 `json:"overall_rating,omitempty"`
	ReviewSources       []string `json:"review_sources,omitempty"`
}

// ProductSnapshot is the full extracted record for one product website. Every
// field is optional; the model fills what the fetched pages and searches
// support and leaves the rest empty.
type ProductSnapshot struct {
	// Identity
	ProductName    string `json:"product_name,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	Website        string `json:"website,omitempty"`
	CompanyWebsite string `json:"company_website,omitempty"`

	// Descriptions
	Description          string `json:"description,omitempty"`
	MetaDescription      string `json:"meta_description,omitempty"`
	Overview             string `json:"overview,omitempty"`
	ElevatorPitch        string `json:"elevator_pitch,omitempty"`
	CompetitiveAdvantage string `json:"competitive_advantage,omitempty"`
	USP                  string `json:"usp,omitempty"`

	// Company facts
	FoundingYear int    `json:"founding_year,omitempty"`
	HQLocation   string `json:"hq_location,omitempty"`

	// Categorization
	Industry       []string `json:"industry,omitempty"`
	MarketSize     string   `json:"market_size,omitempty"`
	ParentCategory string   `json:"parent_category,omitempty"`
	SubCategory    string   `json:"sub_category,omitempty"`

	// Contact and social
	Contact        ContactInfo  `json:"contact,omitempty"`
	SocialProfiles *SocialLinks `json:"social_profiles,omitempty"`

	// Features
	FeatureOverview   string             `json:"feature_overview,omitempty"`
	Features          []Feature          `json:"features,omitempty"`
	OtherFeatures     []string           `json:"other_features,omitempty"`
	DeploymentOptions []DeploymentOption `json:"deployment_options,omitempty"`
	SupportOptions    []SupportOption    `json:"support_options,omitempty"`

	// Pricing
	Pricing PricingInfo `json:"pricing,omitempty"`

	// Company background
	CompanyInfo CompanyInfo `json:"company_info,omitempty"`

	// Reviews
	Reviews ReviewSummary `json:"reviews,omitempty"`

	// Misc
	LanguagesSupported []string      `json:"languages_supported,omitempty"`
	TechnologyStack    []string      `json:"technology_stack,omitempty"`
	LogoURL            string        `json:"logo_url,omitempty"`
	Videos             []string      `json:"videos,omitempty"`
	Integrations       []Integration `json:"integrations,omitempty"`
}

// Parse decodes raw JSON into a ProductSnapshot. Unknown fields are rejected
// so a prose answer wrapped around JSON never passes as a valid record.
func Parse(data []byte) (*ProductSnapshot, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var snap ProductSnapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode product snapshot: %w", err)
	}
	return &snap, nil
}

// ParseLoose extracts the first JSON object embedded in text and parses it.
// Models sometimes wrap their final answer in markdown fences or prose.
func ParseLoose(text string) (*ProductSnapshot, error) {
	raw := []byte(text)
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object found in model output")
	}
	return Parse(raw[start : end+1])
}
