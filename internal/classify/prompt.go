// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classify

import (
	"fmt"
	"strings"
)

const promptHeader = `You are a document filing assistant for a project document management system.
You will be given one document (PDF or image). Classify it into exactly one of the project's folders and extract key fields.

Project folders:`

const promptRules = `
Respond with a single valid JSON object and nothing else, in this exact shape:
{
  "classification": "<one folder name from the list above, copied exactly, or "Unknown" if none applies>",
  "confidence": <integer 0-100, your certainty in the classification>,
  "extractedData": {
    "workerName": "<full name of the worker the document concerns, if any>",
    "companyName": "<company or contractor name, if any>",
    "documentDate": "<document date in ISO-8601 format YYYY-MM-DD, if any>",
    "projectName": "<project or site name mentioned in the document, if any>",
    "hazards": ["<hazard mentioned>", ...]
  },
  "summary": "<one or two sentences describing the document>"
}

Rules:
- "classification" MUST be one of the folder names listed above, character for character, or the exact string "Unknown".
- Omit extractedData keys you cannot determine rather than inventing values.
- All dates MUST be ISO-8601.
- Do not wrap the JSON in markdown fences or add any text before or after it.`

// BuildPrompt renders the classification prompt over a project's folder
// taxonomy. Hints are surfaced to the model as keywords but the answer must
// come from the exact name list.
func BuildPrompt(folders []FolderOption) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n")
	for _, f := range folders {
		if f.Hint != "" {
			fmt.Fprintf(&b, "- %q (keywords: %s)\n", f.Name, f.Hint)
		} else {
			fmt.Fprintf(&b, "- %q\n", f.Name)
		}
	}
	b.WriteString(promptRules)
	return b.String()
}
