package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/vk/bert/internal/ctxlog"
	"github.com/vk/bert/internal/yamldoc"
)

// DefaultFileName is the document looked up inside a directory argument.
const DefaultFileName = "bert-build.yml"

// taskMetaKeys are the task item keys that are not actions.
var taskMetaKeys = []string{"name", "env", "when", "capture", "capture-encoding", "user", "groups"}

// FileLoader reads YAML build documents from disk.
type FileLoader struct {
	tasks TaskLookup
}

// NewLoader creates a FileLoader validating task actions against tasks. A
// nil lookup accepts any action.
func NewLoader(tasks TaskLookup) *FileLoader {
	return &FileLoader{tasks: tasks}
}

// Load reads the document at path. A directory means the default file
// inside it.
func (l *FileLoader) Load(ctx context.Context, path string) (*Root, error) {
	logger := ctxlog.FromContext(ctx)

	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	logger.Debug("Loading build document.", "path", abs)

	doc, err := yamldoc.ParseFile(abs)
	if err != nil {
		return nil, err
	}
	p := parser{tasks: l.tasks, root: &Root{File: abs, Dir: filepath.Dir(abs)}}
	if err := p.parseRoot(doc); err != nil {
		return nil, err
	}
	logger.Debug("Build document loaded.", "configs", len(p.root.Configs), "stages", len(p.root.Stages))
	return p.root, nil
}

type parser struct {
	tasks TaskLookup
	root  *Root
}

func expectMapping(v *yamldoc.Value, what string) error {
	if v.Kind != yamldoc.Mapping {
		return yamldoc.Errorf(v, "%s must be a mapping, got a %s", what, v.Kind)
	}
	return nil
}

func checkKeys(v *yamldoc.Value, what string, allowed ...string) error {
	for i, k := range v.Keys {
		if !slices.Contains(allowed, v.KeyString(i)) {
			return yamldoc.Errorf(k, "unknown %s key %q", what, v.KeyString(i))
		}
	}
	return nil
}

func (p *parser) parseRoot(doc *yamldoc.Value) error {
	if doc.IsNull() {
		return yamldoc.Errorf(doc, "empty build document")
	}
	if err := expectMapping(doc, "build document"); err != nil {
		return err
	}

	vars, err := p.scopeVars(doc)
	if err != nil {
		return err
	}
	p.root.Vars = vars

	if doc.Get("tasks") != nil {
		// A bare task list is a single stage named "default".
		if err := checkKeys(doc, "document", "vars", "include-vars", "from", "build-tag", "work-dir", "tasks", "configs"); err != nil {
			return err
		}
		st, err := p.parseStage("default", doc, false)
		if err != nil {
			return err
		}
		p.root.Stages = []*Stage{st}
	} else {
		if err := checkKeys(doc, "document", "vars", "include-vars", "from", "configs", "stages"); err != nil {
			return err
		}
		if from := doc.Get("from"); from != nil {
			images, err := parseImages(from)
			if err != nil {
				return err
			}
			p.root.Images = images
		}
		stages := doc.Get("stages")
		if stages == nil {
			return yamldoc.Errorf(doc, "build document declares neither tasks nor stages")
		}
		if err := expectMapping(stages, "stages"); err != nil {
			return err
		}
		for i := range stages.Keys {
			st, err := p.parseStage(stages.KeyString(i), stages.Vals[i], true)
			if err != nil {
				return err
			}
			p.root.Stages = append(p.root.Stages, st)
		}
	}

	if configs := doc.Get("configs"); configs != nil {
		cs, err := p.parseConfigs(configs, nil)
		if err != nil {
			return err
		}
		p.root.Configs = cs
	}
	return nil
}

func (p *parser) parseConfigs(v *yamldoc.Value, parent *Config) ([]*Config, error) {
	if v.IsNull() {
		return nil, nil
	}
	if v.Kind != yamldoc.Sequence {
		return nil, yamldoc.Errorf(v, "configs must be a list, got a %s", v.Kind)
	}
	var out []*Config
	for _, item := range v.Items {
		if err := expectMapping(item, "config"); err != nil {
			return nil, err
		}
		if err := checkKeys(item, "config", "name", "from", "vars", "include-vars", "configs"); err != nil {
			return nil, err
		}
		nameNode := item.Get("name")
		name, ok := nameNode.Str()
		if !ok || name == "" {
			return nil, yamldoc.Errorf(item, "config requires a string name")
		}
		c := &Config{Pos: item.Pos, Name: name, parent: parent, root: p.root}
		if from := item.Get("from"); from != nil {
			images, err := parseImages(from)
			if err != nil {
				return nil, err
			}
			c.Images = images
		}
		vars, err := p.scopeVars(item)
		if err != nil {
			return nil, err
		}
		c.Vars = vars
		if children := item.Get("configs"); children != nil {
			cs, err := p.parseConfigs(children, c)
			if err != nil {
				return nil, err
			}
			c.Children = cs
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *parser) parseStage(name string, v *yamldoc.Value, strict bool) (*Stage, error) {
	if err := expectMapping(v, fmt.Sprintf("stage %q", name)); err != nil {
		return nil, err
	}
	st := &Stage{Pos: v.Pos, Name: name}
	if strict {
		if err := checkKeys(v, "stage", "from", "build-tag", "work-dir", "vars", "include-vars", "tasks"); err != nil {
			return nil, err
		}
		vars, err := p.scopeVars(v)
		if err != nil {
			return nil, err
		}
		st.Vars = vars
		if from := v.Get("from"); from != nil {
			images, err := parseImages(from)
			if err != nil {
				return nil, err
			}
			st.Images = images
		}
	} else if from := v.Get("from"); from != nil {
		images, err := parseImages(from)
		if err != nil {
			return nil, err
		}
		p.root.Images = images
	}

	var err error
	if st.BuildTag, err = optString(v, "build-tag"); err != nil {
		return nil, err
	}
	if st.WorkDir, err = optString(v, "work-dir"); err != nil {
		return nil, err
	}

	tasks := v.Get("tasks")
	if tasks == nil || tasks.IsNull() {
		return st, nil
	}
	if tasks.Kind != yamldoc.Sequence {
		return nil, yamldoc.Errorf(tasks, "tasks must be a list, got a %s", tasks.Kind)
	}
	for _, item := range tasks.Items {
		t, err := p.parseTask(item)
		if err != nil {
			return nil, err
		}
		st.Tasks = append(st.Tasks, t)
	}
	return st, nil
}

func (p *parser) parseTask(v *yamldoc.Value) (*Task, error) {
	if err := expectMapping(v, "task"); err != nil {
		return nil, err
	}
	t := &Task{Pos: v.Pos}
	for i, keyNode := range v.Keys {
		key := v.KeyString(i)
		val := v.Vals[i]
		if slices.Contains(taskMetaKeys, key) {
			if err := p.taskMeta(t, key, val); err != nil {
				return nil, err
			}
			continue
		}
		if t.Action != "" {
			return nil, yamldoc.Errorf(keyNode, "task declares more than one action: %q and %q", t.Action, key)
		}
		if p.tasks != nil && !p.tasks.Has(key) {
			return nil, yamldoc.Errorf(keyNode, "unknown task %q", key)
		}
		t.Action = key
		t.Body = val
	}
	if t.Action == "" {
		return nil, yamldoc.Errorf(v, "task declares no action")
	}
	return t, nil
}

func (p *parser) taskMeta(t *Task, key string, val *yamldoc.Value) error {
	if val.IsNull() {
		return nil
	}
	switch key {
	case "env":
		if err := expectMapping(val, "task env"); err != nil {
			return err
		}
		t.Env = make(map[string]string, val.Len())
		for i := range val.Keys {
			t.Env[val.KeyString(i)] = scalarText(val.Vals[i])
		}
		return nil
	case "groups":
		groups, err := parseImages(val)
		if err != nil {
			return err
		}
		t.Groups = groups
		return nil
	}
	if val.Kind != yamldoc.Scalar {
		return yamldoc.Errorf(val, "task %s must be a scalar, got a %s", key, val.Kind)
	}
	s := scalarText(val)
	switch key {
	case "name":
		t.Name = s
	case "when":
		t.When = s
	case "capture":
		t.Capture = s
	case "capture-encoding":
		t.CaptureEncoding = s
	case "user":
		t.User = s
	}
	return nil
}

// scopeVars loads include-vars files first and overlays inline vars.
func (p *parser) scopeVars(v *yamldoc.Value) (map[string]any, error) {
	vars := make(map[string]any)
	if inc := v.Get("include-vars"); inc != nil && !inc.IsNull() {
		if inc.Kind != yamldoc.Sequence {
			return nil, yamldoc.Errorf(inc, "include-vars must be a list of strings")
		}
		for _, item := range inc.Items {
			name, ok := item.Str()
			if !ok {
				return nil, yamldoc.Errorf(item, "include-vars must be a list of strings")
			}
			included, err := LoadVarsFile(p.root.resolve(name))
			if err != nil {
				return nil, err
			}
			for k, val := range included {
				vars[k] = val
			}
		}
	}
	if inline := v.Get("vars"); inline != nil && !inline.IsNull() {
		if err := expectMapping(inline, "vars"); err != nil {
			return nil, err
		}
		for k, val := range inline.Plain().(map[string]any) {
			vars[k] = val
		}
	}
	return vars, nil
}

// LoadVarsFile reads a YAML mapping of variables.
func LoadVarsFile(path string) (map[string]any, error) {
	doc, err := yamldoc.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if doc.IsNull() {
		return map[string]any{}, nil
	}
	if err := expectMapping(doc, "variables file"); err != nil {
		return nil, err
	}
	return doc.Plain().(map[string]any), nil
}

func (r *Root) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Dir, path)
}

// ResolvePath resolves a host path relative to the document directory.
func (r *Root) ResolvePath(path string) string {
	return r.resolve(path)
}

func parseImages(v *yamldoc.Value) ([]string, error) {
	switch v.Kind {
	case yamldoc.Null:
		return nil, nil
	case yamldoc.Scalar:
		return []string{scalarText(v)}, nil
	case yamldoc.Sequence:
		out := make([]string, 0, len(v.Items))
		for _, item := range v.Items {
			if item.Kind != yamldoc.Scalar {
				return nil, yamldoc.Errorf(item, "expected a string, got a %s", item.Kind)
			}
			out = append(out, scalarText(item))
		}
		return out, nil
	}
	return nil, yamldoc.Errorf(v, "expected a string or a list of strings, got a %s", v.Kind)
}

func optString(v *yamldoc.Value, key string) (string, error) {
	n := v.Get(key)
	if n.IsNull() {
		return "", nil
	}
	if n.Kind != yamldoc.Scalar {
		return "", yamldoc.Errorf(n, "%s must be a string, got a %s", key, n.Kind)
	}
	return scalarText(n), nil
}

func scalarText(v *yamldoc.Value) string {
	if v.IsNull() {
		return ""
	}
	if s, ok := v.Str(); ok {
		return s
	}
	return fmt.Sprint(v.Plain())
}
