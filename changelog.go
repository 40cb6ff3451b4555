package adapt

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadChangelog resolves the changelog reference through the accessor into a
// SourceCollection. A reference ending in ".yaml" or ".yml" is read as a YAML
// changelog, every other reference is a directory of "<id>.up.sql" and
// "<id>.down.sql" files.
func loadChangelog(accessor ResourceAccessor, ref string, log *slog.Logger) (SourceCollection, error) {
	switch strings.ToLower(path.Ext(ref)) {
	case ".yaml", ".yml":
		return loadYAMLChangelog(accessor, ref, log)
	default:
		return SourceCollection{NewDirectorySource(accessor, ref)}, nil
	}
}

type yamlChangelog struct {
	// IncludeAll lists directories (relative to the changelog file) whose SQL
	// files are added as additional sources
	IncludeAll []string        `yaml:"includeAll"`
	Changesets []yamlChangeset `yaml:"changesets"`
}

type yamlChangeset struct {
	ID          string   `yaml:"id"`
	Contexts    []string `yaml:"contexts"`
	Labels      []string `yaml:"labels"`
	Transaction *bool    `yaml:"transaction"`
	Up          string   `yaml:"up"`
	Down        string   `yaml:"down"`
	UpFile      string   `yaml:"upFile"`
	DownFile    string   `yaml:"downFile"`
}

func loadYAMLChangelog(accessor ResourceAccessor, ref string, log *slog.Logger) (SourceCollection, error) {
	f, err := accessor.Open(ref)
	if err != nil {
		log.Error("unable to open changelog", "changelog", ref, "error", err)
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	var cl yamlChangelog
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cl); err != nil {
		log.Error("unable to decode changelog", "changelog", ref, "error", err)
		return nil, fmt.Errorf("adapt: decode changelog %q: %w", ref, err)
	}

	base := path.Dir(ref)
	sources := SourceCollection{}
	if len(cl.Changesets) > 0 {
		sources = append(sources, &yamlSource{
			accessor:   accessor,
			base:       base,
			changesets: cl.Changesets,
		})
	}
	for _, dir := range cl.IncludeAll {
		sources = append(sources, NewDirectorySource(accessor, path.Join(base, dir)))
	}

	return sources, nil
}

// yamlSource is a SqlStatementsSource for the changesets declared inline in a
// YAML changelog
type yamlSource struct {
	log        *slog.Logger
	accessor   ResourceAccessor
	base       string
	changesets []yamlChangeset
	byID       map[string]*yamlChangeset
}

func (src *yamlSource) Init(log *slog.Logger) error {
	src.log = log
	src.byID = make(map[string]*yamlChangeset, len(src.changesets))

	for i := range src.changesets {
		cs := &src.changesets[i]
		if strings.TrimSpace(cs.ID) == "" {
			log.Error("changeset without id", "changeset_index", i)
			return fmt.Errorf("adapt.yamlSource: changeset %d without id: %w", i, ErrInvalidSource)
		}
		if _, ok := src.byID[cs.ID]; ok {
			log.Error("changeset id declared twice", "migration_id", cs.ID)
			return fmt.Errorf("adapt.yamlSource: duplicate changeset %q: %w", cs.ID, ErrInvalidSource)
		}
		if (cs.Up == "") == (cs.UpFile == "") {
			log.Error("changeset must declare exactly one of up and upFile", "migration_id", cs.ID)
			return fmt.Errorf("adapt.yamlSource: changeset %q: %w", cs.ID, ErrInvalidSource)
		}
		if cs.Down != "" && cs.DownFile != "" {
			log.Error("changeset must not declare both down and downFile", "migration_id", cs.ID)
			return fmt.Errorf("adapt.yamlSource: changeset %q: %w", cs.ID, ErrInvalidSource)
		}
		src.byID[cs.ID] = cs
	}

	return nil
}

func (src *yamlSource) ListMigrations() ([]string, error) {
	ids := make([]string, 0, len(src.changesets))
	for _, cs := range src.changesets {
		ids = append(ids, cs.ID)
	}
	return ids, nil
}

func (src *yamlSource) parse(inline, file string) (*ParsedMigration, error) {
	if file != "" {
		return parseResource(src.accessor, path.Join(src.base, file), src.log)
	}
	return Parse(strings.NewReader(inline))
}

func (src *yamlSource) GetParsedUpMigration(id string) (*ParsedMigration, error) {
	cs, ok := src.byID[id]
	if !ok {
		return nil, fmt.Errorf("adapt.yamlSource: unable to find changeset %q", id)
	}

	parsed, err := src.parse(cs.Up, cs.UpFile)
	if err != nil {
		return nil, err
	}
	if cs.Transaction != nil && !*cs.Transaction {
		parsed.UseTx = false
	}
	parsed.Contexts = append(parsed.Contexts, cs.Contexts...)
	parsed.Labels = append(parsed.Labels, cs.Labels...)
	return parsed, nil
}

func (src *yamlSource) GetParsedDownMigration(id string) (*ParsedMigration, error) {
	cs, ok := src.byID[id]
	if !ok {
		return nil, fmt.Errorf("adapt.yamlSource: unable to find changeset %q", id)
	}
	if cs.Down == "" && cs.DownFile == "" {
		return nil, nil
	}

	parsed, err := src.parse(cs.Down, cs.DownFile)
	if err != nil {
		return nil, err
	}
	if cs.Transaction != nil && !*cs.Transaction {
		parsed.UseTx = false
	}
	return parsed, nil
}
