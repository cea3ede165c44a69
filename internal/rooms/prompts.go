package rooms

import (
	"fmt"
	"strings"

	"genesis/internal/model"
)

// 画面风格预设，保证同一宇宙的视觉一致性
var stylePresets = map[string]string{
	"comic_book": "digital comic book art style, bold outlines, dynamic composition, vibrant colors, professional illustration",
	"manga":      "manga art style, clean lines, expressive characters, screentone shading",
	"realistic":  "semi-realistic comic art, detailed rendering, cinematic lighting",
	"animated":   "animated series art style, clean cel-shaded look, bright colors",
}

// 通用负向提示词，规避常见画面缺陷
const negativePrompt = "blurry, low quality, distorted, deformed, bad anatomy, " +
	"text, watermark, signature, extra limbs, missing limbs, " +
	"realistic photograph, 3D render, clay render"

const scriptSystemPrompt = `You are a creative writer for The Genesis Protocol, a personalized comic book universe.
Your role is to generate engaging, age-appropriate episode scripts for young heroes (ages 13+).

Guidelines:
1. Create stories that are exciting but appropriate for teenagers
2. Include action, mystery, and character development
3. Reference the hero's unique powers and origin story
4. Weave in current canon events when relevant
5. Create natural dialogue that sounds like real teens
6. Include moments of humor and heart
7. Ensure each episode has a clear beginning, middle, and end
8. Leave hooks for future episodes when appropriate

Content Guidelines:
- Violence should be comic-book style (no graphic gore)
- No romantic content beyond age-appropriate friendships
- Themes of heroism, friendship, and overcoming challenges
- Positive messages about responsibility and growth`

const episodePromptTemplate = `Create Episode %d for %s.

HERO PROFILE:
- Name: %s
- Power Type: %s
- Origin: %s
- Current Location: %s

PREVIOUS STORY CONTEXT:
%s

CURRENT WORLD EVENTS:
%s

CONTENT SETTINGS:
- Violence Level: %d (1=mild, 2=moderate, 3=action-heavy)
- Language Filter: %t

%s
Create a 6-10 panel episode that:
1. Continues the hero's journey naturally
2. Includes at least one exciting action moment
3. References current world events if appropriate
4. Ends with a satisfying conclusion or intriguing hook

Output valid JSON only, no additional text.`

const crossoverSectionTemplate = `CROSSOVER EPISODE:
This episode features a team-up with another hero:
- Partner Name: %s
- Partner Powers: %s
Include meaningful interaction between both heroes and show them working together.

`

const scriptJSONInstruction = `
Output your response as a valid JSON object with this exact structure:
{
    "title": "Episode title",
    "synopsis": "Brief episode summary",
    "panels": [
        {
            "panel_number": 1,
            "visual_prompt": "Detailed description for image generation",
            "dialogue": [{"character": "Name", "text": "What they say"}],
            "caption": "Narrative caption or null",
            "action": "What happens in this panel"
        }
    ],
    "canon_references": ["list of canon elements referenced"],
    "tags": ["action", "mystery", etc.]
}

Generate exactly 8-10 panels for this episode.`

// buildEpisodePrompt 按英雄档案、前情、世界事件和安全设置拼装剧本提示词
func buildEpisodePrompt(in *model.WritersRoomInput) string {
	summary := in.PreviousEpisodesSummary
	if summary == "" {
		summary = "This is the hero's first adventure."
	}

	var events strings.Builder
	for _, ev := range in.ActiveCanonEvents {
		fmt.Fprintf(&events, "- %s: %s\n", ev.Title, ev.Description)
	}
	eventsText := strings.TrimRight(events.String(), "\n")
	if eventsText == "" {
		eventsText = "No major world events currently active."
	}

	crossover := ""
	if in.IncludeCrossover && in.CrossoverHero != nil {
		crossover = fmt.Sprintf(crossoverSectionTemplate,
			in.CrossoverHero.HeroName, in.CrossoverHero.PowerType)
	}

	location := in.CurrentLocation
	if location == "" {
		location = "Metropolis Prime"
	}

	return fmt.Sprintf(episodePromptTemplate,
		in.EpisodeNumber, in.HeroName,
		in.HeroName, in.PowerType, in.OriginStory, location,
		summary, eventsText,
		in.ContentSettings.ViolenceLevel, in.ContentSettings.LanguageFilter,
		crossover)
}

// buildImagePrompt 单个画面的生图提示词：画面描述+风格+场景+角色一致性
func buildImagePrompt(panel model.Panel, heroName, stylePreset string, sheet *model.CharacterSheet) string {
	style, ok := stylePresets[stylePreset]
	if !ok {
		style = stylePresets["comic_book"]
	}

	mood := panel.Mood
	if mood == "" {
		mood = "neutral"
	}
	timeOfDay := panel.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "day"
	}
	location := panel.Location
	if location == "" {
		location = "city"
	}

	parts := []string{
		panel.VisualPrompt,
		"Style: " + style,
		"Scene mood: " + mood,
		"Time of day: " + timeOfDay,
		"Location: " + location,
	}
	if sheet != nil {
		if sheet.VisualDescription != "" {
			parts = append(parts, fmt.Sprintf("Main character (%s): %s", heroName, sheet.VisualDescription))
		}
		if sheet.CostumeDescription != "" {
			parts = append(parts, "Costume: "+sheet.CostumeDescription)
		}
	}
	if panel.Action != "" {
		parts = append(parts, "Action: "+panel.Action)
	}
	return strings.Join(parts, ". ")
}

// buildHighlightPrompt 高潮画面的生成式视频提示词
func buildHighlightPrompt(panel model.Panel) string {
	parts := []string{
		"Comic book action sequence, dynamic camera movement",
		panel.VisualPrompt,
		"Action: " + panel.Action,
		"Dramatic lighting, cinematic composition",
		"High energy, fluid motion, superhero style",
	}
	return strings.Join(parts, ". ")
}
