// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package relay

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// CronTask is executed with the current time of its Cron's clock.
type CronTask func(now time.Time)

type cronjob struct {
	task      CronTask
	interval  time.Duration
	nextEvent time.Time
	running   bool
}

// Cron manages the relay's housekeeping jobs, e.g., removing expired channels.
//
// A job is never executed concurrently to itself. If a run takes longer than its interval, the next due run is
// skipped instead of piling up.
type Cron struct {
	tick time.Duration
	now  func() time.Time

	mutex sync.Mutex
	jobs  map[string]*cronjob
	tasks sync.WaitGroup

	stopOnce sync.Once
	stopSyn  chan struct{}
	stopAck  chan struct{}
}

// NewCron creates and starts an empty Cron instance, checking its jobs every tick against the now clock.
func NewCron(tick time.Duration, now func() time.Time) *Cron {
	cron := &Cron{
		tick:    tick,
		now:     now,
		jobs:    make(map[string]*cronjob),
		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}

	go cron.loop()

	return cron
}

func (cron *Cron) loop() {
	ticker := time.NewTicker(cron.tick)
	defer ticker.Stop()
	defer close(cron.stopAck)

	for {
		select {
		case <-cron.stopSyn:
			return

		case <-ticker.C:
			cron.fire(cron.now())
		}
	}
}

func (cron *Cron) fire(now time.Time) {
	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	for name, job := range cron.jobs {
		logger := log.WithFields(log.Fields{
			"job":      name,
			"interval": job.interval,
		})

		switch {
		case job.nextEvent.After(now):
			continue

		case job.running:
			logger.Debug("Cron skips job, previous run is still active")
			job.nextEvent = now.Add(job.interval)
			continue
		}

		job.nextEvent = now.Add(job.interval)
		job.running = true

		cron.tasks.Add(1)
		go cron.run(job, now)

		logger.WithField("next_event", job.nextEvent).Debug("Cron executed job")
	}
}

func (cron *Cron) run(job *cronjob, now time.Time) {
	defer cron.tasks.Done()

	job.task(now)

	cron.mutex.Lock()
	job.running = false
	cron.mutex.Unlock()
}

// Stop this Cron and wait for active jobs to finish. Further calls are ignored.
func (cron *Cron) Stop() {
	cron.stopOnce.Do(func() {
		close(cron.stopSyn)
		<-cron.stopAck
		cron.tasks.Wait()
	})
}

// Register a new task by its name and interval. The interval must be at least one tick.
func (cron *Cron) Register(name string, task CronTask, interval time.Duration) error {
	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	if _, exists := cron.jobs[name]; exists {
		return fmt.Errorf("a job named %s is already registered", name)
	}
	if interval < cron.tick {
		return fmt.Errorf("given interval %v is shorter than the tick %v", interval, cron.tick)
	}

	cron.jobs[name] = &cronjob{
		task:      task,
		interval:  interval,
		nextEvent: cron.now().Add(interval),
	}
	return nil
}

// Unregister a task by its name. An active run is not interrupted.
func (cron *Cron) Unregister(name string) {
	cron.mutex.Lock()
	defer cron.mutex.Unlock()

	delete(cron.jobs, name)
}
