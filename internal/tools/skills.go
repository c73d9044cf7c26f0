package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openvia/openvia/pkg/models"
)

// Skill is a named external collaborator: a directory containing a
// markdown instructions file the agent can read on demand. Skills are
// fixed at startup — there is no dynamic discovery, only the list_skills/
// read_skill pair naming them.
type Skill struct {
	Name        string
	Description string
	Path        string
}

// SkillSet is a fixed, registration-time collection of skills scanned from
// a root directory, each a subdirectory containing a SKILL.md file whose
// first line is treated as the description.
type SkillSet struct {
	skills map[string]Skill
}

// LoadSkillSet scans root for one-level subdirectories containing SKILL.md.
func LoadSkillSet(root string) (*SkillSet, error) {
	set := &SkillSet{skills: make(map[string]Skill)}
	if root == "" {
		return set, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("scan skills directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillPath := filepath.Join(root, entry.Name())
		manifest := filepath.Join(skillPath, "SKILL.md")
		content, err := os.ReadFile(manifest)
		if err != nil {
			continue
		}
		set.skills[entry.Name()] = Skill{
			Name:        entry.Name(),
			Description: firstLine(string(content)),
			Path:        skillPath,
		}
	}
	return set, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(strings.TrimPrefix(s[:idx], "#"))
	}
	return strings.TrimSpace(s)
}

// NewListSkillsTool builds the list_skills tool def, closed over set.
func NewListSkillsTool(set *SkillSet) models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "list_skills",
		Description: "List the names and one-line descriptions of every available skill.",
		InputSchema: struct{}{},
		Executor: func(execCtx models.ExecContext, args json.RawMessage) models.ToolResult {
			names := make([]string, 0, len(set.skills))
			for name := range set.skills {
				names = append(names, name)
			}
			sort.Strings(names)

			out := make([]map[string]string, 0, len(names))
			for _, name := range names {
				s := set.skills[name]
				out = append(out, map[string]string{"name": s.Name, "description": s.Description})
			}
			return models.ToolResult{Success: true, Data: map[string]any{"skills": out}}
		},
	}
}

type readSkillArgs struct {
	Name string `json:"name" jsonschema:"required,description=Skill name as returned by list_skills"`
}

// NewReadSkillTool builds the read_skill tool def, closed over set.
func NewReadSkillTool(set *SkillSet) models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "read_skill",
		Description: "Read a skill's full SKILL.md instructions by name.",
		InputSchema: readSkillArgs{},
		Executor: func(execCtx models.ExecContext, args json.RawMessage) models.ToolResult {
			var parsed readSkillArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return models.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %s", err)}
			}
			skill, ok := set.skills[parsed.Name]
			if !ok {
				return models.ToolResult{Success: false, Error: fmt.Sprintf("skill not found: %s", parsed.Name)}
			}
			content, err := os.ReadFile(filepath.Join(skill.Path, "SKILL.md"))
			if err != nil {
				return models.ToolResult{Success: false, Error: fmt.Sprintf("read skill: %s", err)}
			}
			return models.ToolResult{Success: true, Data: map[string]any{"name": skill.Name, "content": string(content)}}
		},
	}
}
