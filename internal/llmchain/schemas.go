// Package llmchain implements the three-stage LLM Stage Chain:
// detect_highlight, trim_highlight, caption_highlight. Each stage is its own
// small type rather than instances of one shared base — their input/output
// types and fallback semantics differ enough that a shared embedding would
// hide more than it shares.
package llmchain

import "google.golang.org/genai"

var detectHighlightFn = &genai.FunctionDeclaration{
	Name:        "report_highlight_detection",
	Description: "Report whether the video window contains highlight-worthy action.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"is_highlight": {Type: genai.TypeBoolean},
			"confidence":   {Type: genai.TypeString, Enum: []string{"high", "medium", "low"}},
			"reason":       {Type: genai.TypeString},
		},
		Required: []string{"is_highlight", "confidence", "reason"},
	},
}

var trimSegmentsFn = &genai.FunctionDeclaration{
	Name:        "report_trim_segments",
	Description: "Report the 1-based inclusive chunk range containing the highlight action.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"start_segment": {Type: genai.TypeInteger},
			"end_segment":   {Type: genai.TypeInteger},
			"reasoning":     {Type: genai.TypeString},
		},
		Required: []string{"start_segment", "end_segment", "reasoning"},
	},
}

var highlightCaptionFn = &genai.FunctionDeclaration{
	Name:        "report_highlight_caption",
	Description: "Report a title, description and key action for a trimmed highlight clip.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":       {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
			"key_action":  {Type: genai.TypeString},
		},
		Required: []string{"title", "description"},
	},
}
