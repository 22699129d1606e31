// Package downloader runs the download worker and the caller-side client that talks to it.
//
// The worker is isolated from the scheduler: it shares nothing with the rest of the program
// except the primitives in Channels. Network and codec work runs in child processes started
// by the MediaSource and Transcoder adapters, under the worker's context.
package downloader

import (
	"errors"
	"sync/atomic"

	"github.com/tejashwikalptaru/tubetune/internal/concurrency"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

// Registry names of the downloader primitives.
const (
	CommandQueueName   = "Downloader Commands"
	ResponseQueueName  = "Downloader Responses"
	IDQueueName        = "ID Requests"
	StopFlagName       = "Download Stop"
	CancelFlagName     = "Download Cancel Next"
	SelectSlotName     = "Download Select"
	SelectFlagName     = "Download Select Pending"
	ClosedSignalName   = "Downloader Closed"
	WorkerThreadName   = "Download Worker"
	ListenerThreadName = "Download Listener"
	IDThreadName       = "ID Listener"
)

// Channels are the only primitives the worker shares with the scheduler side.
type Channels struct {
	Commands  *concurrency.Queue[domain.Command]
	Responses *concurrency.Queue[domain.Response]
	IDs       *IDPipe

	// Stop wakes the worker after RequestStop; which Downloads it aborts is decided by
	// the generation watermark, never by the signal alone.
	Stop *concurrency.Signal

	// CancelNext makes the worker answer the next dequeued command with Cancelled.
	CancelNext *concurrency.Signal

	// Select holds the index the sweep should jump to; SelectPending wakes a cooling-down sweep.
	Select        *concurrency.IndexSlot
	SelectPending *concurrency.Signal

	// Closed is set by the listener once the worker acknowledged the shutdown sentinel.
	Closed *concurrency.Signal

	// stopBelow is one past the newest Download generation a stop was requested for.
	stopBelow atomic.Uint64
}

// RequestStop aborts every Download whose generation is at most gen, running or queued.
// The watermark only moves forward, so a late request never revives an older stop.
func (c *Channels) RequestStop(gen uint64) {
	for {
		cur := c.stopBelow.Load()
		if gen+1 <= cur || c.stopBelow.CompareAndSwap(cur, gen+1) {
			break
		}
	}
	c.Stop.Set()
}

// StopRequested reports whether the Download of generation gen must end.
func (c *Channels) StopRequested(gen uint64) bool {
	return gen < c.stopBelow.Load()
}

// NewChannels creates (or reuses) the downloader primitives in the registry.
func NewChannels(reg *concurrency.Registry) (*Channels, error) {
	var errs []error
	keep := func(err error) {
		if err != nil && !errors.Is(err, domain.ErrNameTaken) {
			errs = append(errs, err)
		}
	}

	c := &Channels{}
	var err error
	c.Commands, err = concurrency.CreateQueue[domain.Command](reg, CommandQueueName)
	keep(err)
	c.Responses, err = concurrency.CreateQueue[domain.Response](reg, ResponseQueueName)
	keep(err)
	idQueue, err := concurrency.CreateQueue[idRequest](reg, IDQueueName)
	keep(err)
	c.IDs = &IDPipe{requests: idQueue}
	c.Stop, err = reg.CreateCrossProcessFlag(StopFlagName)
	keep(err)
	c.CancelNext, err = reg.CreateCrossProcessFlag(CancelFlagName)
	keep(err)
	c.Select, err = reg.CreateIndexSlot(SelectSlotName)
	keep(err)
	c.SelectPending, err = reg.CreateCrossProcessFlag(SelectFlagName)
	keep(err)
	c.Closed, err = reg.CreateThreadSignal(ClosedSignalName)
	keep(err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if c.Commands == nil || c.Responses == nil || idQueue == nil {
		return nil, domain.NewServiceError("Downloader", "NewChannels", "queue registered with another type", domain.ErrNameTaken)
	}
	return c, nil
}
