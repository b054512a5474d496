package llmchain

import "fmt"

const detectHighlightPrompt = `You are analyzing a short clip from a live sports broadcast. Decide whether
this window contains a highlight-worthy moment — a score, a near-miss, a
big save, a turnover, or similarly notable action. Call
report_highlight_detection with your verdict, a confidence level, and a
one-sentence reason.`

const trimHighlightPromptTemplate = `This clip was flagged as a highlight. Identify which of its numbered
segments contain the actual highlight action, so the rest can be trimmed
away. Segments are numbered 1 through the last segment in the clip, in
order. Call report_trim_segments with the first and last segment to keep.
%s`

const captionHighlightPrompt = `Write a short, engaging title and a one-to-two sentence description for
this highlight clip, suitable for a sports-clips feed. Call
report_highlight_caption with the title, description, and (optionally) the
key action depicted.`

func trimPrompt(detectReason, detectConfidence string) string {
	context := ""
	if detectReason != "" {
		context = fmt.Sprintf("\nDetection context: confidence=%s, reason=%s", detectConfidence, detectReason)
	}
	return fmt.Sprintf(trimHighlightPromptTemplate, context)
}
