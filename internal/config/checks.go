package config

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bartekus/commitgate/internal/check"
	"github.com/bartekus/commitgate/internal/checks"
)

// exePatterns maps executable file extensions to the interpreter
// pattern the shebang has to match.
var exePatterns = map[string]*regexp.Regexp{
	"coffee": regexp.MustCompile("^coffee"),
	"php":    regexp.MustCompile("^php"),
	"pp":     regexp.MustCompile("^puppet"),
	"py":     regexp.MustCompile("^python"),
	"rb":     regexp.MustCompile("^ruby"),
	"sh":     regexp.MustCompile("sh$"),
	"js":     regexp.MustCompile("js$"),
}

// generalExeNames are executable names too generic to flag for a
// missing extension.
var generalExeNames = []string{"exec", "go", "install", "run", "setup"}

// Checks builds the check templates from the configuration. The
// returned templates carry no state and are specialized per scope by
// the gate.
func (c *Config) Checks() ([]check.Check, error) {
	var templates []check.Check
	add := func(key string, chk check.Check) {
		if !slices.Contains(c.Ignored, key) {
			templates = append(templates, chk)
		}
	}

	add("duplicate_summaries", &checks.CheckDuplicateSummaries{})
	add("misleading_merge", &checks.CheckMisleadingMerge{Protected: c.ProtectedBranches})
	add("timestamps", checks.NewCheckTimestamps(Now()))
	add("contributors", &checks.CheckContributors{})
	add("commit_message", &checks.CheckCommitMessage{Length: c.CommitMessage.Length})
	add("commit_summary", &checks.CheckCommitSummary{
		SoftLength: c.CommitSummary.SoftLength,
		HardLength: c.CommitSummary.HardLength,
	})
	add("changed_file_paths", &checks.CheckChangedFilePaths{
		Extensions: c.ChangedFilePaths.Extensions,
	})
	add("executable", &checks.CheckExecutable{
		ExePatterns:  exePatterns,
		GeneralNames: generalExeNames,
	})
	add("symlink", &checks.CheckSymlink{})
	add("syntax_json", &checks.CheckSyntax{
		Extension: "json",
		Load: func(content []byte) error {
			var v any
			return json.Unmarshal(content, &v)
		},
	})
	add("syntax_yaml", &checks.CheckSyntax{
		Extension: "yaml",
		Load: func(content []byte) error {
			var v any
			return yaml.Unmarshal(content, &v)
		},
	})
	add("syntax_xml", &checks.CheckSyntax{
		Extension: "xml",
		Load: func(content []byte) error {
			dec := xml.NewDecoder(bytes.NewReader(content))
			for {
				if _, err := dec.Token(); err != nil {
					if err == io.EOF {
						return nil
					}
					return err
				}
			}
		},
	})

	byName := map[string]*checks.CheckCommand{}
	for _, opts := range c.Commands {
		name := opts.Name
		if name == "" {
			if len(opts.Args) == 0 {
				return nil, fmt.Errorf("command with no name and no args")
			}
			name = opts.Args[0]
		}

		cmd := checks.NewCheckCommand(opts.Args, opts.ConfigFiles...)
		cmd.Extension = opts.Extension
		if opts.ExePattern != "" {
			pattern, err := regexp.Compile(opts.ExePattern)
			if err != nil {
				return nil, fmt.Errorf("command %s: exe_pattern: %w", name, err)
			}
			cmd.ExePattern = pattern
		}
		cmd.Header = opts.Header
		cmd.Footer = opts.Footer
		cmd.ConfigRequired = opts.ConfigRequired
		cmd.BogusExit = opts.BogusExitCode
		cmd.AppendFilePath = opts.AppendFilePath

		for _, ref := range opts.Preferred {
			preferred, ok := byName[ref]
			if !ok {
				return nil, fmt.Errorf("command %s: preferred command %s not defined before it", name, ref)
			}
			cmd.Preferred = append(cmd.Preferred, preferred)
		}

		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("command %s defined twice", name)
		}
		byName[name] = cmd
		add("command_"+name, cmd)
	}

	return templates, nil
}
