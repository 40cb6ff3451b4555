package adapt

import "context"

func (e *exec) stageHealthCheck(ctx context.Context) error {
	e.log.Debug("health check")

	if err := e.session.useSchema(ctx, e.log); err != nil {
		return err
	}

	if err := e.store.Healthy(ctx); err != nil {
		return err
	}

	e.log.Info("health check successful")
	return nil
}
