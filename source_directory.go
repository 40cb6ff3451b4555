package adapt

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
)

type directorySource struct {
	log       *slog.Logger
	accessor  ResourceAccessor
	directory string
	fsMap     map[string]string
	fsList    []string
}

// NewDirectorySource provides a SqlStatementsSource that uses the SQL-files
// within directory of the ResourceAccessor as migrations. Every file must be
// named "<id>.up.sql" or "<id>.down.sql".
func NewDirectorySource(accessor ResourceAccessor, directory string) SqlStatementsSource {
	return &directorySource{
		accessor:  accessor,
		directory: directory,
		fsMap:     make(map[string]string),
	}
}

func (src *directorySource) Init(log *slog.Logger) error {
	src.log = log

	entries, err := src.accessor.ReadDir(src.directory)
	if err != nil {
		log.Error("unable to read directory content", "directory", src.directory, "error", err)
		return err
	}

	filterMap := make(map[string]struct{})

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		id := e.Name()
		id = strings.TrimSuffix(id, ".sql")

		if strings.HasSuffix(id, ".up") {
			filterMap[strings.TrimSuffix(id, ".up")] = struct{}{}
		} else if strings.HasSuffix(id, ".down") {
			filterMap[strings.TrimSuffix(id, ".down")] = struct{}{}
		} else {
			log.Error("migration with invalid id. Doesn't have '.up.sql' or '.down.sql' suffix",
				"migration_id", id, "filename", e.Name())
			return fmt.Errorf("adapt.directorySource: migration with invalid id: %w", ErrInvalidSource)
		}

		src.fsMap[id] = path.Join(src.directory, e.Name())
	}

	// generate list of map keys
	for key := range filterMap {
		if _, ok := src.fsMap[key+".up"]; !ok {
			log.Error("migration only provides a down file", "migration_id", key)
			return fmt.Errorf("adapt.directorySource: migration %q without up file: %w", key, ErrInvalidSource)
		}
		src.fsList = append(src.fsList, key)
	}

	return nil
}

func (src *directorySource) ListMigrations() ([]string, error) {
	return src.fsList, nil
}

func (src *directorySource) GetParsedUpMigration(id string) (*ParsedMigration, error) {
	if filename, ok := src.fsMap[id+".up"]; ok {
		return parseResource(src.accessor, filename, src.log)
	}

	return nil, fmt.Errorf("adapt.directorySource: unable to find up migration for id %q", id)
}

func (src *directorySource) GetParsedDownMigration(id string) (*ParsedMigration, error) {
	if filename, ok := src.fsMap[id+".down"]; ok {
		return parseResource(src.accessor, filename, src.log)
	}
	return nil, nil
}

// parseResource opens filename from the accessor and runs it through Parse
func parseResource(accessor ResourceAccessor, filename string, log *slog.Logger) (*ParsedMigration, error) {
	f, err := accessor.Open(filename)
	if err != nil {
		log.Error("unable to open file", "filename", filename, "error", err)
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	parsed, err := Parse(f)
	if err != nil {
		log.Error("unable to parse file", "filename", filename, "error", err)
		return nil, err
	}
	return parsed, nil
}
