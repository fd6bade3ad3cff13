package analysis

import "github.com/recapio/recap/app/sanitize"

const jsonOnly = " Respond with a single JSON object and nothing else."

const tonePrompt = "You classify the overall tone of a piece of content. " +
	"Pick the single best label, e.g. informative, promotional, opinionated, " +
	"alarmist, humorous, neutral." + jsonOnly +
	` Shape: {"tone": "..."}. ` + sanitize.InstructionAnchor

const topicsPrompt = "You extract the factual topics in a piece of content that " +
	"would benefit from verification against current web sources. Produce at most " +
	"3 short search queries, most important first. Skip opinions and common knowledge." +
	jsonOnly + ` Shape: {"queries": ["...", "..."]}. ` + sanitize.InstructionAnchor

const overviewPrompt = "You write a content overview for a busy reader deciding " +
	"whether to engage. Provide a one-sentence hook, 3 to 6 key points, and the " +
	"audience who benefits most." + jsonOnly +
	` Shape: {"hook": "...", "key_points": ["..."], "audience": "..."}. ` +
	sanitize.InstructionAnchor

const triagePrompt = "You triage content quality. Score overall quality 1-10, flag " +
	"clickbait framing, rate information density as low, medium or high, give a " +
	"two-sentence assessment, and recommend one of: read_fully, skim, skip." + jsonOnly +
	` Shape: {"quality_score": 7, "clickbait": false, "density": "medium", ` +
	`"assessment": "...", "recommendation": "read_fully"}. ` + sanitize.InstructionAnchor

const factCheckPrompt = "You fact-check the strongest factual claims in the content. " +
	"For each claim give a verdict of verified, disputed, false or unverifiable, a short " +
	"explanation, and the supporting source if one was provided in the search evidence. " +
	"Rate overall reliability as high, mixed or low. Check at most 5 claims." + jsonOnly +
	` Shape: {"overall_reliability": "high", "claims": [{"claim": "...", ` +
	`"verdict": "verified", "explanation": "...", "source": "..."}]}. ` +
	sanitize.InstructionAnchor

const actionItemsPrompt = "You extract concrete, actionable takeaways a reader could " +
	"act on. Each has a short title, a one-sentence description, and a priority of " +
	"high, medium or low. Return an empty list if the content has none." + jsonOnly +
	` Shape: {"items": [{"title": "...", "description": "...", "priority": "high"}]}. ` +
	sanitize.InstructionAnchor

const briefSummaryPrompt = "You summarize content in a single paragraph of at most " +
	"120 words, plain prose, no headings or lists. Respond with the paragraph only. " +
	sanitize.InstructionAnchor

const detailedSummaryPrompt = "You write a detailed summary of content in 3 to 6 " +
	"paragraphs covering every substantive point, in the order the source presents " +
	"them. Plain prose, no headings. Respond with the summary only. " +
	sanitize.InstructionAnchor

const tagsPrompt = "You assign 3 to 8 short lowercase topic tags to content based on " +
	"its analysis. Tags are single words or two-word phrases." + jsonOnly +
	` Shape: {"tags": ["...", "..."]}.`
