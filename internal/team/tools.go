package team

import "github.com/user/basecamp/internal/provider"

// The four tools agents may call. web_search is declared so models can ask
// for it, but execution always reports that search is unavailable locally.
const (
	toolReadFile  = "read_file"
	toolListFiles = "list_files"
	toolWriteFile = "write_file"
	toolWebSearch = "web_search"
)

func functionSpec(name string, description string, properties map[string]any, required []string) provider.ToolSpec {
	return provider.ToolSpec{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

func toolSpecForName(name string) (provider.ToolSpec, bool) {
	switch name {
	case toolReadFile:
		return functionSpec(toolReadFile,
			"Read a UTF-8 text file inside your context directory.",
			map[string]any{
				"path": map[string]any{"type": "string", "description": "Relative path inside the context directory."},
			},
			[]string{"path"}), true
	case toolListFiles:
		return functionSpec(toolListFiles,
			"List files under a directory inside your context directory.",
			map[string]any{
				"path": map[string]any{"type": "string", "description": "Relative directory path; omit for the context root."},
			},
			nil), true
	case toolWriteFile:
		return functionSpec(toolWriteFile,
			"Write a file inside your context directory.",
			map[string]any{
				"path":     map[string]any{"type": "string", "description": "Relative path inside the context directory."},
				"content":  map[string]any{"type": "string", "description": "File content."},
				"encoding": map[string]any{"type": "string", "enum": []string{"utf-8", "base64"}, "description": "Content encoding, utf-8 by default."},
			},
			[]string{"path", "content"}), true
	case toolWebSearch:
		return functionSpec(toolWebSearch,
			"Search the web. Unavailable in local deterministic mode.",
			map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query."},
			},
			[]string{"query"}), true
	}
	return provider.ToolSpec{}, false
}

// toolSpecsForSubset builds the specs offered to the model for an agent's
// tool subset. Unknown names are dropped silently.
func toolSpecsForSubset(subset []string) []provider.ToolSpec {
	specs := make([]provider.ToolSpec, 0, len(subset))
	for _, name := range subset {
		if spec, ok := toolSpecForName(name); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}
