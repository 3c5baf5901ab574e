package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

const unknownLabel = "unknown_replay"

var nonTitleChars = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// jsLabel returns the first non-empty name the page exposes for what it is
// rendering, checked from most to least specific source.
const jsLabel = `(() => {
const str = (v) => (typeof v === "string" && v.trim()) ? v.trim() : "";
const pick = (...vals) => { for (const v of vals) { const s = str(v); if (s) return s; } return ""; };
const w = window;
let name = pick(
  w.GAME_NAME, w.gameName,
  w.gameConfig && w.gameConfig.gameName, w.gameConfig && w.gameConfig.name,
  w.PP && w.PP.gameName, w.PP && w.PP.config && w.PP.config.gameName,
  w.pragmaticConfig && w.pragmaticConfig.gameName,
);
if (name) return {source: "globals", name};
for (const key of Object.keys(w)) {
  try {
    const v = w[key];
    if (!v || typeof v !== "object") continue;
    name = pick(v.gameName, v.slotName, key.toLowerCase().includes("game") ? v.name : "");
    if (name) return {source: "window." + key, name};
  } catch (e) {}
}
try {
  name = pick(sessionStorage.getItem("gameName"), localStorage.getItem("gameName"));
  if (name) return {source: "storage", name};
} catch (e) {}
const meta = document.querySelector('meta[property="og:title"]');
if (meta && str(meta.content)) return {source: "og:title", name: str(meta.content)};
return {source: "title", name: document.title || ""};
})()`

type labelProbe struct {
	Source string `json:"source"`
	Name   string `json:"name"`
}

// genericTitles are provider page titles that say nothing about the replay.
var genericTitles = []string{"pragmatic replay", "pragmatic play"}

// probeLabel never fails; it falls back to unknownLabel.
func probeLabel(ctx context.Context, page Page) string {
	var p labelProbe
	if err := page.Evaluate(ctx, jsLabel, &p); err != nil {
		slog.Debug("session label probe failed", "error", err)
		return unknownLabel
	}
	return resolveLabel(p)
}

func resolveLabel(p labelProbe) string {
	name := strings.TrimSpace(p.Name)
	if p.Source == "title" {
		lower := strings.ToLower(name)
		for _, g := range genericTitles {
			if strings.Contains(lower, g) {
				return unknownLabel
			}
		}
		name = strings.TrimSpace(nonTitleChars.ReplaceAllString(name, ""))
		if len(name) > 50 {
			name = name[:50]
		}
	}
	if name == "" {
		return unknownLabel
	}
	return name
}

// jsHeadingContains reports whether any h2 contains text.
func jsHeadingContains(text string) string {
	b, _ := json.Marshal(text)
	return `Array.from(document.querySelectorAll("h2")).some((h) => (h.textContent || "").includes(` + string(b) + `))`
}

const appErrorMarker = "Application error"
