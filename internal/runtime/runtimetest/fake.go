// Package runtimetest provides an in-memory runtime for tests.
package runtimetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dcm-project/service-orchestrator/internal/runtime"
)

// Fake records calls and tracks containers and stacks in memory. Set an
// entry in Failures, keyed by method name, to make that method fail with a
// *runtime.CommandError carrying the value as output.
type Fake struct {
	mu         sync.Mutex
	Calls      []string
	Failures   map[string]string
	blocked    map[string]chan struct{}
	Containers map[string]runtime.ContainerStatus
	Stacks     map[string]bool
	Specs      map[string]runtime.ContainerSpec
}

var _ runtime.Runtime = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Failures:   map[string]string{},
		blocked:    map[string]chan struct{}{},
		Containers: map[string]runtime.ContainerStatus{},
		Stacks:     map[string]bool{},
		Specs:      map[string]runtime.ContainerSpec{},
	}
}

// Fail makes method fail with output until cleared.
func (f *Fake) Fail(method, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Failures[method] = output
}

func (f *Fake) Clear(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Failures, method)
}

// Block makes method hang after recording its call until Unblock is called
// or the caller's context is done.
func (f *Fake) Block(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blocked[method]; !ok {
		f.blocked[method] = make(chan struct{})
	}
}

func (f *Fake) Unblock(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.blocked[method]; ok {
		close(ch)
		delete(f.blocked, method)
	}
}

// wait is called without f.mu held.
func (f *Fake) wait(ctx context.Context, method string) error {
	f.mu.Lock()
	ch, ok := f.blocked[method]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return &runtime.CommandError{Args: []string{"docker", method}, ExitCode: -1, Output: "signal: killed\n"}
	}
}

// SetStatus overrides the status of a known container.
func (f *Fake) SetStatus(name string, status runtime.ContainerStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Containers[name] = status
}

func (f *Fake) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *Fake) HasContainer(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Containers[name]
	return ok
}

func (f *Fake) HasStack(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Stacks[name]
}

func (f *Fake) record(method, arg string) error {
	f.Calls = append(f.Calls, method+" "+arg)
	if output, ok := f.Failures[method]; ok {
		return &runtime.CommandError{Args: []string{"docker", method, arg}, ExitCode: 1, Output: output}
	}
	return nil
}

func (f *Fake) BuildImage(ctx context.Context, tag, _ string) error {
	f.mu.Lock()
	err := f.record("BuildImage", tag)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.wait(ctx, "BuildImage")
}

func (f *Fake) PullImage(ctx context.Context, ref string) error {
	f.mu.Lock()
	err := f.record("PullImage", ref)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.wait(ctx, "PullImage")
}

func (f *Fake) RunContainer(_ context.Context, spec runtime.ContainerSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RunContainer", spec.Name); err != nil {
		return err
	}
	if _, ok := f.Containers[spec.Name]; ok {
		return &runtime.CommandError{
			Args:     []string{"docker", "run", spec.Name},
			ExitCode: 125,
			Output:   fmt.Sprintf("Conflict. The container name %q is already in use", "/"+spec.Name),
		}
	}
	f.Containers[spec.Name] = runtime.StatusRunning
	f.Specs[spec.Name] = spec
	return nil
}

func (f *Fake) RemoveContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveContainer", name); err != nil {
		return err
	}
	if _, ok := f.Containers[name]; !ok {
		return runtime.ErrContainerNotFound
	}
	delete(f.Containers, name)
	delete(f.Specs, name)
	return nil
}

func (f *Fake) ComposeBuild(_ context.Context, project, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("ComposeBuild", project)
}

func (f *Fake) ComposeUp(_ context.Context, project, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ComposeUp", project); err != nil {
		return err
	}
	f.Stacks[project] = true
	return nil
}

func (f *Fake) ComposeDown(_ context.Context, project, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ComposeDown", project); err != nil {
		return err
	}
	delete(f.Stacks, project)
	return nil
}

func (f *Fake) ContainerStatus(_ context.Context, name string) (runtime.ContainerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ContainerStatus", name); err != nil {
		return "", err
	}
	status, ok := f.Containers[name]
	if !ok {
		return "", runtime.ErrContainerNotFound
	}
	return status, nil
}
