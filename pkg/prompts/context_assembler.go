package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siteiq-ai/siteiq-engine/pkg/models"
)

const (
	// MaxContentCharsPerProfile caps crawled raw content included per profile.
	// Content beyond the cap is truncated, not summarized.
	MaxContentCharsPerProfile = 6000

	// MaxContextChars caps the assembled context block across all profiles.
	// Multi-competitor conversations can reference many crawled sites, and an
	// unbounded prompt would blow past provider context windows. Profiles that
	// do not fit are dropped and counted in an explicit omission marker.
	MaxContextChars = 24000
)

// BuildProfileContext renders completed website profiles into a text block
// that is appended to the base system prompt. An empty profile list produces
// an empty string, never an error.
func BuildProfileContext(profiles []models.WebsiteProfile) string {
	if len(profiles) == 0 {
		return ""
	}

	var block strings.Builder
	block.WriteString("# Analyzed Websites\n\n")
	block.WriteString("The following websites were crawled and analyzed in this conversation. Use this data to ground your answers.\n\n")

	included := 0
	for _, profile := range profiles {
		section := renderProfile(&profile)
		if block.Len()+len(section) > MaxContextChars {
			break
		}
		block.WriteString(section)
		included++
	}

	if included == 0 {
		return ""
	}

	if omitted := len(profiles) - included; omitted > 0 {
		block.WriteString(fmt.Sprintf("(omitted %d more profiles to stay within the context budget)\n", omitted))
	}

	return block.String()
}

// AppendProfileContext concatenates the profile context block after the base
// system prompt. With no completed profiles the base prompt is returned
// unchanged.
func AppendProfileContext(systemPrompt string, profiles []models.WebsiteProfile) string {
	block := BuildProfileContext(profiles)
	if block == "" {
		return systemPrompt
	}
	if systemPrompt == "" {
		return block
	}
	return systemPrompt + "\n\n" + block
}

func renderProfile(profile *models.WebsiteProfile) string {
	var section strings.Builder

	section.WriteString(fmt.Sprintf("## %s\n", profile.URL))
	if profile.IsOwnWebsite {
		section.WriteString("Type: user's own website\n")
	} else {
		section.WriteString("Type: competitor website\n")
	}

	if profile.OverallScore != nil {
		section.WriteString(fmt.Sprintf("Overall score: %.1f\n", *profile.OverallScore))
	}

	if len(profile.CategoryScores) > 0 {
		if scores, err := json.Marshal(profile.CategoryScores); err == nil {
			section.WriteString(fmt.Sprintf("Category scores: %s\n", scores))
		}
	}

	if len(profile.Profile) > 0 {
		if data, err := json.Marshal(profile.Profile); err == nil {
			section.WriteString(fmt.Sprintf("Profile: %s\n", data))
		}
	}

	if profile.CrawledContent != "" {
		content := profile.CrawledContent
		if len(content) > MaxContentCharsPerProfile {
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := MaxContentCharsPerProfile
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "... [truncated]"
		}
		section.WriteString("Crawled content:\n")
		section.WriteString(content)
		section.WriteString("\n")
	}

	section.WriteString("\n")
	return section.String()
}
