package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/corpus/ai"
)

const segmentationResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "segments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "kind": {
            "type": "string"
          },
          "text": {
            "type": "string"
          }
        },
        "required": ["kind", "text"],
        "additionalProperties": false
      }
    }
  },
  "required": ["segments"],
  "additionalProperties": false
}`

const segmentationPromptTemplate = `Split the given document into structural segments and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Kind field must match exactly one of the listed values: %s.
- Text must be copied VERBATIM from the document. Do not paraphrase, summarize, merge, or reorder.
- Segments must appear in document order and together cover the meaningful content of the document.
- Split at natural boundaries: headings, paragraph breaks, list and table starts, code blocks.
- Keep each segment self-contained; never cut a sentence in half.
- If the document yields no segments, return "segments": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input:
"# Setup
Install the package with pip.

- requires python 3.10
- requires a GPU"
Output:
{
  "segments": [
    {"kind":"heading","text":"# Setup"},
    {"kind":"paragraph","text":"Install the package with pip."},
    {"kind":"list","text":"- requires python 3.10\n- requires a GPU"}
  ]
}`

// buildSystemPrompt creates the system prompt with segment kinds embedded.
func buildSystemPrompt() string {
	return fmt.Sprintf(segmentationPromptTemplate,
		segmentationResponseSchema,
		strings.Join(ai.SegmentKinds, ", "))
}
