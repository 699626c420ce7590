package git

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
)

// CommittedFile is one path at one commit. Content is fetched lazily
// and at most once.
type CommittedFile struct {
	Path   string
	Commit *Commit

	// Mode is the six-digit file mode from the diff, empty when the
	// file was not built from one.
	Mode string

	content []byte
	fetched bool
}

func NewCommittedFile(commit *Commit, filePath, mode string) *CommittedFile {
	return &CommittedFile{Path: filePath, Commit: commit, Mode: mode}
}

func (f *CommittedFile) String() string {
	return fmt.Sprintf("%s at %s", f.Path, f.Commit)
}

// Equal matches by path and commit identifier.
func (f *CommittedFile) Equal(other *CommittedFile) bool {
	return other != nil && f.Path == other.Path && f.Commit.ID == other.Commit.ID
}

// Exists reports whether the path exists at the commit.
func (f *CommittedFile) Exists(ctx context.Context) (bool, error) {
	return f.Commit.backend.BlobExists(ctx, f.Commit.ID, f.Path)
}

// Changed reports whether the commit added or modified the path.
func (f *CommittedFile) Changed(ctx context.Context) (bool, error) {
	files, err := f.Commit.ChangedFiles(ctx)
	if err != nil {
		return false, err
	}
	for _, other := range files {
		if f.Equal(other) {
			return true, nil
		}
	}
	return false, nil
}

// Symlink reports whether the mode bits mark the file as a symlink.
func (f *CommittedFile) Symlink() bool {
	return len(f.Mode) == 6 && f.Mode[1] == '2'
}

// OwnerCanExecute reports whether the owner execute bit is set.
func (f *CommittedFile) OwnerCanExecute() bool {
	if len(f.Mode) != 6 {
		return false
	}
	return (f.Mode[3]-'0')&1 == 1
}

func (f *CommittedFile) Filename() string {
	return path.Base(f.Path)
}

// Extension is the part after the last dot of the path, empty when the
// path has none.
func (f *CommittedFile) Extension() string {
	if index := strings.LastIndex(f.Path, "."); index >= 0 {
		return f.Path[index+1:]
	}
	return ""
}

// Content returns the file content, fetching it at most once.
func (f *CommittedFile) Content(ctx context.Context) ([]byte, error) {
	if f.fetched {
		return f.content, nil
	}
	content, err := f.Commit.backend.BlobContent(ctx, f.Commit.ID, f.Path)
	if err != nil {
		return nil, err
	}
	f.content = content
	f.fetched = true
	return content, nil
}

// Stream starts a content producer suitable for wiring into an external
// process. Callers that already hold the content should still prefer
// this for piping; the producer streams without buffering the blob.
func (f *CommittedFile) Stream(ctx context.Context) (*BlobStream, error) {
	return f.Commit.backend.BlobStream(ctx, f.Commit.ID, f.Path)
}

// Shebang returns the interpreter line without the leading #!, or empty
// when the content has none.
func (f *CommittedFile) Shebang(ctx context.Context) (string, error) {
	content, err := f.Content(ctx)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(string(content), "#!") {
		return "", nil
	}
	first := string(content[2:])
	if index := strings.IndexByte(first, '\n'); index >= 0 {
		first = first[:index]
	}
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// ShebangExe returns the executable name the shebang resolves to,
// unwrapping /usr/bin/env.
func (f *CommittedFile) ShebangExe(ctx context.Context) (string, error) {
	shebang, err := f.Shebang(ctx)
	if err != nil || shebang == "" {
		return "", err
	}
	if shebang == "/usr/bin/env" {
		content, err := f.Content(ctx)
		if err != nil {
			return "", err
		}
		first := string(content)
		if index := strings.IndexByte(first, '\n'); index >= 0 {
			first = first[:index]
		}
		fields := strings.Fields(strings.TrimPrefix(first, "#!"))
		if len(fields) < 2 {
			return "", nil
		}
		return fields[1], nil
	}
	if index := strings.LastIndex(shebang, "/"); index >= 0 {
		return shebang[index+1:], nil
	}
	return shebang, nil
}

// SymlinkTarget resolves the symlink content to a CommittedFile at the
// same commit. Targets are relative to the symlink's directory.
func (f *CommittedFile) SymlinkTarget(ctx context.Context) (*CommittedFile, error) {
	content, err := f.Content(ctx)
	if err != nil {
		return nil, err
	}
	target := path.Join(path.Dir(f.Path), strings.TrimSpace(string(content)))
	return NewCommittedFile(f.Commit, target, ""), nil
}

// Materialize writes the file content to its path in the working
// directory. Pre-receive hooks run on bare repositories, so checking
// tools only find configuration files after they are written out.
func (f *CommittedFile) Materialize(ctx context.Context) error {
	content, err := f.Content(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.Path, content, 0o644); err != nil {
		return fmt.Errorf("materializing %s: %w", f.Path, err)
	}
	return nil
}
