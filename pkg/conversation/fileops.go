package conversation

import (
	"path"
	"strings"
)

// MutatingTools are the tool names whose successful results modify a file.
var MutatingTools = []string{"write", "edit"}

// FileOps lists the files touched by successful tool calls
type FileOps struct {
	Modified []string `json:"modified_files"`
	Deleted  []string `json:"deleted_files"`
}

// FileOpsOptions tunes ExtractFileOpsWith
type FileOpsOptions struct {
	// DeletingTools are tool names whose successful results delete the file at
	// their "path" argument. No built-in tool deletes files, so this is empty by default.
	DeletingTools []string
}

// ExtractFileOps detects modified files with the default options
func ExtractFileOps(msgs []Message) FileOps {
	return ExtractFileOpsWith(msgs, FileOpsOptions{})
}

// ExtractFileOpsWith scans tool results in order and collects the paths written
// by successful, resolvable mutating calls. Deletion wins over modification.
func ExtractFileOpsWith(msgs []Message, opts FileOpsOptions) FileOps {
	index := IndexToolCalls(msgs)

	var modified, deleted []string
	for _, msg := range msgs {
		if msg.Role != RoleToolResult || msg.IsError {
			continue
		}
		call, ok := index[msg.ToolCallID]
		if !ok {
			continue
		}
		p, ok := call.StringArg("path")
		if !ok {
			continue
		}
		switch {
		case containsName(MutatingTools, call.Name):
			modified = append(modified, p)
		case containsName(opts.DeletingTools, call.Name):
			deleted = append(deleted, p)
		}
	}

	deleted = dedupe(deleted)
	gone := make(map[string]struct{}, len(deleted))
	for _, p := range deleted {
		gone[p] = struct{}{}
	}

	kept := make([]string, 0, len(modified))
	for _, p := range dedupe(modified) {
		if _, ok := gone[p]; ok {
			continue
		}
		kept = append(kept, p)
	}

	return FileOps{Modified: kept, Deleted: deleted}
}

// IsTempArtifact reports whether a path looks like a transient file
func IsTempArtifact(p string) bool {
	if strings.TrimSpace(p) == "" {
		return false
	}
	base := strings.ToLower(path.Base(strings.ReplaceAll(p, "\\", "/")))
	return strings.HasPrefix(base, "__tmp") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.Contains(base, ".tmp.")
}

// SplitModified separates relevant paths from temp artifacts, keeping order
func SplitModified(paths []string) (relevant, temp []string) {
	relevant = []string{}
	temp = []string{}
	for _, p := range paths {
		if IsTempArtifact(p) {
			temp = append(temp, p)
		} else {
			relevant = append(relevant, p)
		}
	}
	return relevant, temp
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
