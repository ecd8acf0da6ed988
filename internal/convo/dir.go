package convo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const dirExt = ".txt"

// DirLibrary keeps one plain-text file per context: <dir>/<name>.txt. Saved
// contexts are flattened into the preamble.
type DirLibrary struct {
	dir string
}

func NewDirLibrary(dir string) (*DirLibrary, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("empty context dir")
	}
	return &DirLibrary{dir: dir}, nil
}

func (l *DirLibrary) path(name string) string {
	return filepath.Join(l.dir, name+dirExt)
}

func (l *DirLibrary) Get(name string) (ConversationContext, error) {
	if err := ValidName(name); err != nil {
		return ConversationContext{}, fmt.Errorf("%w: %v", ErrContextNotFound, err)
	}
	b, err := os.ReadFile(l.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ConversationContext{}, fmt.Errorf("%w: %s", ErrContextNotFound, name)
		}
		return ConversationContext{}, err
	}
	return ConversationContext{Name: name, Preamble: strings.TrimRight(string(b), "\n")}, nil
}

func (l *DirLibrary) Put(c ConversationContext) error {
	if err := ValidName(c.Name); err != nil {
		return err
	}
	return writeFileAtomic(l.path(c.Name), []byte(c.Text()+"\n"))
}

func (l *DirLibrary) Names() ([]string, error) {
	ents, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dirExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), dirExt)
		if ValidName(name) == nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *DirLibrary) Close() error { return nil }

func writeFileAtomic(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
