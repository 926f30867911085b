// Package worker provides a parallel tile rendering worker pool.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/turbulence/internal/tile"
)

// Generator renders one tile. pipeline.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, coords tile.Coords, force bool, suffix string) (path string, err error)
}

// Task represents a single tile rendering task.
type Task struct {
	Coords tile.Coords
	Force  bool
	Suffix string
}

// Result represents the outcome of a tile rendering task.
type Result struct {
	Task    Task
	Path    string
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Generator  Generator
	OnProgress ProgressFunc
}

// Pool manages parallel tile rendering.
type Pool struct {
	workers    int
	generator  Generator
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		generator:  cfg.Generator,
		onProgress: cfg.OnProgress,
	}
}

type indexedResult struct {
	index int
	Result
}

// Run executes all tasks and returns one result per task, in task order.
// It blocks until every task has either run or been marked with the
// context error.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan int, len(tasks))
	resultCh := make(chan indexedResult, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, tasks, taskCh, resultCh)
		}()
	}

	for i := range tasks {
		taskCh <- i
	}
	close(taskCh)

	results := make([]Result, len(tasks))
	done := make(chan struct{})
	go func() {
		defer close(done)
		completed, failed := 0, 0
		for r := range resultCh {
			results[r.index] = r.Result
			completed++
			if r.Err != nil {
				failed++
			}
			if p.onProgress != nil {
				p.onProgress(completed, len(tasks), failed)
			}
		}
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

// worker processes task indexes until the channel is drained. Once ctx is
// done, remaining tasks are reported with the context error without running.
func (p *Pool) worker(ctx context.Context, tasks []Task, indexes <-chan int, results chan<- indexedResult) {
	for i := range indexes {
		task := tasks[i]
		if err := ctx.Err(); err != nil {
			results <- indexedResult{index: i, Result: Result{Task: task, Err: err}}
			continue
		}

		start := time.Now()
		path, err := p.generator.Generate(ctx, task.Coords, task.Force, task.Suffix)

		results <- indexedResult{index: i, Result: Result{
			Task:    task,
			Path:    path,
			Err:     err,
			Elapsed: time.Since(start),
		}}
	}
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
