package server

import (
	"context"
	"sync"
	"time"
)

// advancer is stepped once per tick with the elapsed time in seconds.
type advancer interface {
	Advance(dt float64)
}

type tickerFactory func(time.Duration) (<-chan time.Time, func())

type timeSource func() time.Time

// tickDriver calls Advance on its target at a fixed rate from a single
// goroutine.
type tickDriver struct {
	target    advancer
	tick      time.Duration
	metrics   *Metrics
	wg        sync.WaitGroup
	newTicker tickerFactory
	now       timeSource
}

func defaultTickerFactory() tickerFactory {
	return func(d time.Duration) (<-chan time.Time, func()) {
		ticker := time.NewTicker(d)
		return ticker.C, ticker.Stop
	}
}

func newTickDriver(target advancer, tick time.Duration, metrics *Metrics) *tickDriver {
	if tick <= 0 {
		tick = time.Second / 60
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &tickDriver{
		target:    target,
		tick:      tick,
		metrics:   metrics,
		newTicker: defaultTickerFactory(),
		now:       time.Now,
	}
}

func (d *tickDriver) Start(ctx context.Context) {
	if d == nil || d.target == nil {
		return
	}
	d.wg.Add(1)
	go d.run(ctx)
}

func (d *tickDriver) run(ctx context.Context) {
	defer d.wg.Done()

	tickerC, stop := d.newTicker(d.tick)
	defer stop()

	last := d.now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tickerC:
			// Stalls and clock jumps advance by one nominal tick.
			delta := now.Sub(last)
			if delta <= 0 || delta > 10*d.tick {
				delta = d.tick
			}
			last = now

			started := d.now()
			d.target.Advance(delta.Seconds())
			d.metrics.AddTick(delta, d.now().Sub(started))
		}
	}
}

func (d *tickDriver) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
