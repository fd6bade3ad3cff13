package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recapio/recap/app/analysis"
	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/sanitize"
)

// maxFieldChars bounds each payload string before it is sent for translation.
const maxFieldChars = 10000

// Extract builds the translation payload from a completed summary. Only
// free-text fields enter the payload; numeric scores, severity enums and
// verdict enums are excluded entirely so the model cannot invent new enum
// values. Every string is sanitized first.
func Extract(s *database.Summary) (map[string]any, error) {
	payload := map[string]any{}

	if s.Overview != nil {
		var o analysis.Overview
		if err := json.Unmarshal(s.Overview, &o); err != nil {
			return nil, fmt.Errorf("failed to decode overview: %w", err)
		}
		payload["overview"] = map[string]any{
			"hook":       clean(o.Hook),
			"key_points": cleanList(o.KeyPoints),
			"audience":   clean(o.Audience),
		}
	}

	if s.Triage != nil {
		var t analysis.Triage
		if err := json.Unmarshal(s.Triage, &t); err != nil {
			return nil, fmt.Errorf("failed to decode triage: %w", err)
		}
		payload["triage"] = map[string]any{
			"assessment": clean(t.Assessment),
		}
	}

	if s.FactCheck != nil {
		var fc analysis.FactCheck
		if err := json.Unmarshal(s.FactCheck, &fc); err != nil {
			return nil, fmt.Errorf("failed to decode fact check: %w", err)
		}
		claims := make([]map[string]any, 0, len(fc.Claims))
		for _, c := range fc.Claims {
			claims = append(claims, map[string]any{
				"claim":       clean(c.Claim),
				"explanation": clean(c.Explanation),
			})
		}
		payload["fact_check"] = map[string]any{"claims": claims}
	}

	if s.ActionItems != nil {
		var ai analysis.ActionItems
		if err := json.Unmarshal(s.ActionItems, &ai); err != nil {
			return nil, fmt.Errorf("failed to decode action items: %w", err)
		}
		items := make([]map[string]any, 0, len(ai.Items))
		for _, item := range ai.Items {
			items = append(items, map[string]any{
				"title":       clean(item.Title),
				"description": clean(item.Description),
			})
		}
		payload["action_items"] = map[string]any{"items": items}
	}

	if s.BriefSummary != nil {
		payload["brief_summary"] = clean(*s.BriefSummary)
	}
	if s.DetailedSummary != nil {
		payload["detailed_summary"] = clean(*s.DetailedSummary)
	}

	return payload, nil
}

// Merge fills target's section fields from source overlaid with the model's
// translated payload. Every field falls back to the source value when the
// translated value is absent, empty, or of the wrong type, so the merged
// result is never structurally worse than the source.
func Merge(source, target *database.Summary, translated map[string]any) error {
	if source.Overview != nil {
		var o analysis.Overview
		if err := json.Unmarshal(source.Overview, &o); err != nil {
			return fmt.Errorf("failed to decode overview: %w", err)
		}
		if t, ok := childObject(translated, "overview"); ok {
			o.Hook = mergeString(o.Hook, t, "hook")
			o.KeyPoints = mergeStrings(o.KeyPoints, t, "key_points")
			o.Audience = mergeString(o.Audience, t, "audience")
		}
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to encode overview: %w", err)
		}
		target.Overview = data
	}

	if source.Triage != nil {
		var tr analysis.Triage
		if err := json.Unmarshal(source.Triage, &tr); err != nil {
			return fmt.Errorf("failed to decode triage: %w", err)
		}
		if t, ok := childObject(translated, "triage"); ok {
			tr.Assessment = mergeString(tr.Assessment, t, "assessment")
		}
		data, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("failed to encode triage: %w", err)
		}
		target.Triage = data
	}

	if source.FactCheck != nil {
		var fc analysis.FactCheck
		if err := json.Unmarshal(source.FactCheck, &fc); err != nil {
			return fmt.Errorf("failed to decode fact check: %w", err)
		}
		if t, ok := childObject(translated, "fact_check"); ok {
			if list, ok := childList(t, "claims"); ok {
				for i := range fc.Claims {
					if i >= len(list) {
						break
					}
					item, ok := list[i].(map[string]any)
					if !ok {
						continue
					}
					fc.Claims[i].Claim = mergeString(fc.Claims[i].Claim, item, "claim")
					fc.Claims[i].Explanation = mergeString(fc.Claims[i].Explanation, item, "explanation")
				}
			}
		}
		data, err := json.Marshal(fc)
		if err != nil {
			return fmt.Errorf("failed to encode fact check: %w", err)
		}
		target.FactCheck = data
	}

	if source.ActionItems != nil {
		var items analysis.ActionItems
		if err := json.Unmarshal(source.ActionItems, &items); err != nil {
			return fmt.Errorf("failed to decode action items: %w", err)
		}
		if t, ok := childObject(translated, "action_items"); ok {
			if list, ok := childList(t, "items"); ok {
				for i := range items.Items {
					if i >= len(list) {
						break
					}
					item, ok := list[i].(map[string]any)
					if !ok {
						continue
					}
					items.Items[i].Title = mergeString(items.Items[i].Title, item, "title")
					items.Items[i].Description = mergeString(items.Items[i].Description, item, "description")
				}
			}
		}
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to encode action items: %w", err)
		}
		target.ActionItems = data
	}

	if source.BriefSummary != nil {
		v := mergeString(*source.BriefSummary, translated, "brief_summary")
		target.BriefSummary = &v
	}
	if source.DetailedSummary != nil {
		v := mergeString(*source.DetailedSummary, translated, "detailed_summary")
		target.DetailedSummary = &v
	}

	// Tone and tags are short labels that stay in the source language.
	target.Tone = source.Tone
	target.Tags = source.Tags

	return nil
}

func clean(s string) string {
	return sanitize.Sanitize(s, maxFieldChars)
}

func cleanList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, clean(s))
	}
	return out
}

func mergeString(fallback string, m map[string]any, key string) string {
	if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func mergeStrings(fallback []string, m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok || len(raw) == 0 {
		return fallback
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fallback
		}
		out = append(out, s)
	}
	return out
}

func childObject(m map[string]any, key string) (map[string]any, bool) {
	o, ok := m[key].(map[string]any)
	return o, ok
}

func childList(m map[string]any, key string) ([]any, bool) {
	l, ok := m[key].([]any)
	return l, ok
}
