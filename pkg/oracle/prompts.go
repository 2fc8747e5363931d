package oracle

import (
	"encoding/json"
	"strings"

	"github.com/kodackx/echo-forge-ai/pkg/character"
	"github.com/kodackx/echo-forge-ai/pkg/story"
)

// beatSystemPrompt fixes the JSON contract for story-beat generation. The
// response must parse as a single JSON object; anything else is a hard
// failure upstream.
const beatSystemPrompt = `You are a master storyteller running an interactive branching narrative.

Given the current story state, the relevant facts, the characters present, and the player's input, write the next story beat.

The continuation must:
1. Respond naturally to the player's input, honouring the player character's personality and background.
2. Stay consistent with previous events and each character's knowledge.
3. Have non-player characters react according to their personalities and relationship sentiments.
4. Advance relationships and goals where the scene justifies it.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "text": "<the story continuation, second person, addressing the player directly>",
  "choices": ["<2-4 follow-up actions the player may take>"],
  "metadata": {
    "character_updates": {
      "<character name>": {
        "relationships": {"<other character>": <target sentiment, -1.0 to 1.0>},
        "goal_updates": [{"description": "<exact goal text>", "progress": <0.0 to 1.0>}],
        "new_knowledge": ["<fact the character learned this beat>"]
      }
    }
  }
}

Include a character in character_updates only when this beat actually changes their state.`

const dialogueSystemPrompt = `You are an expert dialogue writer for an interactive narrative.

Write in-character spoken lines only. Match the character's personality traits, reference their memories naturally, and keep a consistent voice. Respond with the dialogue text alone, no quotation marks, no stage directions, no JSON.`

const reflectionSystemPrompt = `You are voicing a character's private thoughts in an interactive narrative.

Write a short internal monologue, first person, true to the character's personality, goals, and relationships. One paragraph at most. Respond with the monologue text alone.`

const summarySystemPrompt = `You condense chapters of an interactive narrative into rolling summaries.

Summarise the passages into one tight paragraph that preserves: named characters and their standing with each other, unresolved goals and threats, and any facts later scenes may depend on. Drop scenery and incidental detail. Respond with the summary text alone.`

func buildBeatPrompt(asm story.AssembledContext) string {
	var sb strings.Builder

	sb.WriteString("Current story state:\n")
	sb.WriteString(asm.CurrentContent)
	sb.WriteString("\n")

	if len(asm.ChapterSummaries) > 0 {
		sb.WriteString("\nEarlier chapters, oldest first:\n")
		for _, s := range asm.ChapterSummaries {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteByte('\n')
		}
	}

	if len(asm.Memories) > 0 {
		sb.WriteString("\nRelevant facts:\n")
		for _, m := range asm.Memories {
			sb.WriteString("- ")
			sb.WriteString(m)
			sb.WriteByte('\n')
		}
	}

	if asm.Player != nil {
		sb.WriteString("\nPlayer character:\n")
		sb.WriteString(renderCharacter(*asm.Player))
	}
	if len(asm.Others) > 0 {
		sb.WriteString("\nNon-player characters:\n")
		for _, cc := range asm.Others {
			sb.WriteString(renderCharacter(cc))
		}
	}

	if len(asm.Monologues) > 0 {
		sb.WriteString("\nPrivate character thoughts (do not reveal verbatim):\n")
		for name, thought := range asm.Monologues {
			sb.WriteString(name)
			sb.WriteString(": ")
			sb.WriteString(thought)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("\nPlayer input:\n")
	sb.WriteString(asm.UserInput)
	sb.WriteByte('\n')
	return sb.String()
}

func buildDialoguePrompt(req character.DialogueRequest) string {
	var sb strings.Builder

	sb.WriteString("Speaker: ")
	sb.WriteString(req.CharacterName)
	sb.WriteString("\n\nPersonality:\n")
	sb.WriteString(renderPersonality(req.Personality))

	if len(req.Memories) > 0 {
		sb.WriteString("\nWhat the speaker remembers:\n")
		for _, m := range req.Memories {
			sb.WriteString("- ")
			sb.WriteString(m)
			sb.WriteByte('\n')
		}
	}
	if len(req.Context) > 0 {
		sb.WriteString("\nScene context:\n")
		sb.WriteString(renderJSON(req.Context))
	}
	if req.Style != "" {
		sb.WriteString("\nDelivery style: ")
		sb.WriteString(req.Style)
		sb.WriteByte('\n')
	}

	sb.WriteString("\nTopic:\n")
	sb.WriteString(req.Topic)
	sb.WriteByte('\n')
	return sb.String()
}

func buildReflectionPrompt(req character.ReflectionRequest) string {
	var sb strings.Builder

	sb.WriteString("Character: ")
	sb.WriteString(req.CharacterName)
	sb.WriteString("\n\nPersonality:\n")
	sb.WriteString(renderPersonality(req.Personality))

	if len(req.Memories) > 0 {
		sb.WriteString("\nWhat the character remembers:\n")
		for _, m := range req.Memories {
			sb.WriteString("- ")
			sb.WriteString(m)
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("\nSituation:\n")
	sb.WriteString(req.Situation)
	sb.WriteByte('\n')
	return sb.String()
}

func buildSummaryPrompt(passages []string) string {
	var sb strings.Builder
	sb.WriteString("Passages to condense, oldest first:\n\n")
	for _, p := range passages {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func renderCharacter(cc character.Context) string {
	return renderJSON(cc)
}

func renderPersonality(p character.PersonalityModel) string {
	return renderJSON(p)
}

func renderJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw) + "\n"
}
