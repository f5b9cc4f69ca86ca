package service

import (
	"fmt"
	"strings"

	"github.com/Strob0t/ScoreForge/internal/domain/project"
	"github.com/Strob0t/ScoreForge/internal/port/aiclient"
)

// initialIntraContext seeds the rolling intra-file context before the first
// group of a file has been scored.
const initialIntraContext = "This is the first chunk group of the file."

// failedGroupSummary replaces the rolling context after a group could not be
// scored.
const failedGroupSummary = "The previous chunk group could not be scored."

// batchBoundary separates files inside a batched scoring prompt.
const batchBoundary = "\n\n========== FILE BOUNDARY ==========\n\n"

const scoreFieldsSpec = `Score each axis from 0 to 10:
"complexity" (how demanding the problem being solved is),
"code_quality", "maintainability", "best_practices".
Add "strengths" and "weaknesses" (one short sentence each).`

func contextMessages(readme, fileTree string) []aiclient.Message {
	return []aiclient.Message{
		{Role: "system", Content: "You analyze software repositories. Respond with JSON only."},
		{Role: "user", Content: fmt.Sprintf(`Infer what this project is from its README and file tree.

README excerpt:
%s

File tree:
%s

Return a JSON object with:
"project_essence" (one sentence), "primary_domain" (short label),
"primary_stack" (short label), "core_concepts" (array of up to 6 strings).`, readme, fileTree)},
	}
}

func selectionMessages(pc *project.Context, fileTree string) []aiclient.Message {
	return []aiclient.Message{
		{Role: "system", Content: "You select source files for code-quality review. Respond with JSON only."},
		{Role: "user", Content: fmt.Sprintf(`Project: %s
Domain: %s. Stack: %s.

Pick the files (or whole directories) that best represent the project's own
engineering work. Exclude lockfiles, generated code, and assets. If you
suspect a path holds vendored or third-party code, append " # <reason>" to
that entry instead of selecting it.

File tree:
%s

Return a JSON object: {"files": ["<path>", "<path> # <reason>", ...]}.`, pc.ProjectEssence, pc.PrimaryDomain, pc.PrimaryStack, fileTree)},
	}
}

func groupScoreMessages(pc *project.Context, intraContext, filePath, combinedText string) []aiclient.Message {
	return []aiclient.Message{
		{Role: "system", Content: "You are a strict senior code reviewer. Respond with JSON only."},
		{Role: "user", Content: fmt.Sprintf(`Project context: %s (domain: %s, stack: %s).
Earlier in this file: %s

Score this chunk group of %s.

%s
Also add "group_summary": 1-2 sentences describing what this group contains,
to carry context into the next group.

Code:
%s`, pc.ProjectEssence, pc.PrimaryDomain, pc.PrimaryStack, intraContext, filePath, scoreFieldsSpec, combinedText)},
	}
}

func batchScoreMessages(pc *project.Context, paths []string, combined string) []aiclient.Message {
	return []aiclient.Message{
		{Role: "system", Content: "You are a strict senior code reviewer. Respond with JSON only."},
		{Role: "user", Content: fmt.Sprintf(`Project context: %s (domain: %s, stack: %s).

Review each of the following %d files independently. Files are separated by
"%s" markers and each begins with its path.

%s
Return a JSON object: {"reviews": [{"file_path": "<path>", ...score fields...}, ...]}
with exactly one review per file (%s).

Code:
%s`, pc.ProjectEssence, pc.PrimaryDomain, pc.PrimaryStack, len(paths),
			strings.TrimSpace(batchBoundary), scoreFieldsSpec, strings.Join(paths, ", "), combined)},
	}
}

func finalReviewMessages(pc *project.Context, preliminary float64, fileCount int, dossier string) []aiclient.Message {
	return []aiclient.Message{
		{Role: "system", Content: "You calibrate preliminary code-quality scores against evidence. Respond with JSON only."},
		{Role: "user", Content: fmt.Sprintf(`Project: %s (domain: %s, stack: %s).
Preliminary project score: %.2f over %d scored files.

Below is a dossier of the highest-impact code with its initial scores. Judge
whether the preliminary score is fair and return a JSON object with:
"final_score_multiplier" (number between 0.8 and 1.25),
"tech_stack" (refined stack label), "summary" (holistic assessment),
"reasoning" (why the multiplier).

Dossier:
%s`, pc.ProjectEssence, pc.PrimaryDomain, pc.PrimaryStack, preliminary, fileCount, dossier)},
	}
}
