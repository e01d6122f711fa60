package conversation

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"cyberchat-go/internal/model"
)

// MultiSink writes each record to every sink concurrently and reports all failures.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, record model.ChatRecord) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range m {
		g.Go(func() error {
			if err := sink.Write(ctx, record); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
