package mcpserver

// NoteFormatContract describes the canonical note format that LLM consumers
// should follow when creating or updating notes.
const NoteFormatContract = `# Munin Note Format Contract

Every note stored in Munin MUST follow this structure.

## Structure

` + "```" + `markdown
---
uid: 20250115093042123456             # assigned by Munin, never invent one
title: Human-readable title           # derived from the first heading
tags:                                 # OPTIONAL - list form or inline [a, b]
  - tag-one
  - tag-two
created_at: 2025-01-15 09:30:42
updated_at: 2025-01-15 09:30:42
---

# Human-readable title

Body text in standard Markdown.

Use [[Other Note Title]] to reference other notes by title.
Use [[Target Title|alias]] for display text that differs from the target.
Use #hashtags anywhere in the body; they count as tags.
` + "```" + `

## Rules

1. **The metadata fence is mandatory.** The ` + "`" + `---` + "`" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **Never write the uid or timestamps yourself.** When creating a note, send
   only the Markdown body; Munin assigns the uid and metadata.
3. **The title is the first H1 or H2 heading of the body.** There is no
   separately settable title.
4. **Wikilinks** use double brackets and target note *titles*, not file
   names: ` + "`" + `[[Weekly Standup]]` + "`" + `. Titles resolve case-insensitively.
5. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `meeting-notes` + "`" + `).
6. **Encoding** is UTF-8.

## Example body (what create_note expects)

` + "```" + `markdown
# Weekly standup 2025-01-20

Attendees: Alice, Bob. #meeting-notes

## Action items

- [[Alice]] to review the [[Design Doc]]
- Bob to update [[Project X Roadmap|the roadmap]]
` + "```" + `
`
