package downloader

import (
	"context"
	"log/slog"

	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
)

type idRequest struct {
	name  string
	kind  domain.IDKind
	reply chan idReply
}

type idReply struct {
	id  domain.ID
	err error
}

// IDPipe forwards ID allocation requests from the worker to the single allocator owned by the
// scheduler side, so the ID table is never duplicated.
type IDPipe struct {
	requests *concurrency.Queue[idRequest]
}

// NewIDPipe creates a pipe over its own queue. Used when no registry is involved.
func NewIDPipe() *IDPipe {
	return &IDPipe{requests: concurrency.NewQueue[idRequest](IDQueueName)}
}

// IDFor asks the serving side for an ID and waits for the answer.
func (p *IDPipe) IDFor(ctx context.Context, name string, kind domain.IDKind) (domain.ID, error) {
	reply := make(chan idReply, 1)
	p.requests.Put(idRequest{name: name, kind: kind, reply: reply})
	select {
	case r := <-reply:
		return r.id, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Serve answers requests with the allocator until ctx is done.
func (p *IDPipe) Serve(ctx context.Context, allocator ports.IDAllocator, logger *slog.Logger) error {
	for {
		req, err := p.requests.Get(ctx)
		if err != nil {
			return err
		}
		id, err := allocator.IDFor(req.name, req.kind)
		if err != nil {
			logger.Warn("id allocation failed", slog.String("name", req.name), slog.Any("error", err))
		}
		req.reply <- idReply{id: id, err: err}
	}
}
