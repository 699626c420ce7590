package checks

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/git"
	"github.com/bartekus/commitgate/internal/git/gittest"
)

func fileAt(t *testing.T, path, mode, content string) *git.CommittedFile {
	t.Helper()
	backend := gittest.NewBackend()
	ident := gittest.Ident("Alice", "alice@example.com", 1000)
	id := backend.Add(commitID(0), gittest.FakeCommit{
		Author:    ident,
		Committer: ident,
		Message:   "Add file",
		Files:     []git.FileChange{{Path: path, Mode: mode}},
		Blobs:     map[string]string{path: content},
	})
	return git.NewCommittedFile(git.NewCommit(backend, id), path, mode)
}

func executableTemplate() *CheckExecutable {
	return &CheckExecutable{
		ExePatterns: map[string]*regexp.Regexp{
			"py": regexp.MustCompile("^python"),
			"sh": regexp.MustCompile("sh$"),
		},
		GeneralNames: []string{"exec", "go", "install", "run", "setup"},
	}
}

func TestExecutable(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		mode     string
		content  string
		expected []string
	}{
		{
			name:     "executable script with env shebang",
			path:     "bin/deploy",
			mode:     "100755",
			content:  "#!/usr/bin/env python3\nprint('hi')\n",
			expected: nil,
		},
		{
			name:     "executable without shebang",
			path:     "bin/deploy",
			mode:     "100755",
			content:  "print('hi')\n",
			expected: []string{"executable file without shebang"},
		},
		{
			name:     "relative shebang",
			path:     "bin/deploy",
			mode:     "100755",
			content:  "#!python\nprint('hi')\n",
			expected: []string{"shebang executable python is not full path"},
		},
		{
			name:     "non-portable shebang",
			path:     "bin/deploy",
			mode:     "100755",
			content:  "#!/usr/bin/python3\nprint('hi')\n",
			expected: []string{"shebang is not portable (use /usr/bin/env)"},
		},
		{
			name:     "non-executable with shebang",
			path:     "lib/util.py",
			mode:     "100644",
			content:  "#!/usr/bin/env python\npass\n",
			expected: []string{"non-executable file with shebang"},
		},
		{
			name:     "non-executable without shebang",
			path:     "lib/util.py",
			mode:     "100644",
			content:  "pass\n",
			expected: nil,
		},
		{
			name:     "unknown extension is not even read",
			path:     "README.md",
			mode:     "100644",
			content:  "#!/bin/sh\n",
			expected: nil,
		},
		{
			name:     "redundant extension",
			path:     "bin/deploy.py",
			mode:     "100755",
			content:  "#!/usr/bin/env python\npass\n",
			expected: []string{"redundant file extension"},
		},
		{
			name:     "general name keeps extension",
			path:     "setup.py",
			mode:     "100755",
			content:  "#!/usr/bin/env python\npass\n",
			expected: nil,
		},
		{
			name:     "interpreter mismatch",
			path:     "bin/deploy.py",
			mode:     "100755",
			content:  "#!/usr/bin/env bash\necho hi\n",
			expected: []string{`shebang executable "bash" doesn't match pattern "^python"`},
		},
		{
			name:     "extension used as a name",
			path:     "bin/sh",
			mode:     "100755",
			content:  "#!/bin/sh\necho hi\n",
			expected: []string{"file extension without a name"},
		},
		{
			name:     "general executable name",
			path:     "bin/run",
			mode:     "100755",
			content:  "#!/bin/sh\necho hi\n",
			expected: []string{"general executable name"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := fileAt(t, tt.path, tt.mode, tt.content)
			c := prepareOn(t, executableTemplate(), file)
			problems := collectProblems(t, c)

			var messages []string
			for _, problem := range problems {
				messages = append(messages, problem.Message)
			}
			assert.Equal(t, tt.expected, messages)
		})
	}
}

func TestSymlink(t *testing.T) {
	file := fileAt(t, "docs/link", "120000", "missing-target")
	c := prepareOn(t, &CheckSymlink{}, file)
	problems := collectProblems(t, c)

	require.Len(t, problems, 1)
	assert.Equal(t, check.SeverityWarning, problems[0].Severity)
	assert.Equal(t, "symlink target docs/missing-target doesn't exist on repository", problems[0].Message)
}

func TestSymlinkSkipsRegularFiles(t *testing.T) {
	file := fileAt(t, "lib/util.py", "100644", "pass\n")
	prepared, err := (&CheckSymlink{}).Prepare(context.Background(), file)
	require.NoError(t, err)
	assert.Nil(t, prepared)
}

func TestSyntax(t *testing.T) {
	load := func(content []byte) error {
		var v any
		return json.Unmarshal(content, &v)
	}

	t.Run("valid", func(t *testing.T) {
		file := fileAt(t, "data/config.json", "100644", `{"a": 1}`)
		c := prepareOn(t, &CheckSyntax{Extension: "json", Load: load}, file)
		assert.Empty(t, collectProblems(t, c))
	})

	t.Run("invalid", func(t *testing.T) {
		file := fileAt(t, "data/config.json", "100644", `{"a": `)
		c := prepareOn(t, &CheckSyntax{Extension: "json", Load: load}, file)
		problems := collectProblems(t, c)
		require.Len(t, problems, 1)
		assert.Equal(t, check.SeverityError, problems[0].Severity)
		assert.Equal(t, check.StateFailed, c.State())
	})

	t.Run("skips other extensions", func(t *testing.T) {
		file := fileAt(t, "data/config.yaml", "100644", "a: 1\n")
		prepared, err := (&CheckSyntax{Extension: "json", Load: load}).Prepare(context.Background(), file)
		require.NoError(t, err)
		assert.Nil(t, prepared)
	})

	t.Run("skips templated content", func(t *testing.T) {
		file := fileAt(t, "deploy/templates/config.json", "100644", `{{ broken }}`)
		prepared, err := (&CheckSyntax{Extension: "json", Load: load}).Prepare(context.Background(), file)
		require.NoError(t, err)
		assert.Nil(t, prepared)
	})
}
