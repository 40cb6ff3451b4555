package adapt

import (
	"fmt"
	"log/slog"
)

func initSources(sources SourceCollection, log *slog.Logger) error {
	log.Debug("init")

	for idx, src := range sources {
		if err := src.Init(log); err != nil {
			log.Error("failed to init source", "source_index", idx, "error", err)
			return err
		}

		switch src.(type) {
		case SqlStatementsSource:
		case HookSource:
		default:
			log.Error("source must be either implement SqlStatementsSource or HookSource", "source_index", idx)
			return fmt.Errorf("adapt: source must be either implement SqlStatementsSource or HookSource: %w", ErrInvalidSource)
		}
	}

	log.Info("init successful")
	return nil
}
