package bootstrap

import (
	"context"
	"fmt"

	"github.com/m3rciful/gostage/core/scene"
)

// Hook runs once infrastructure is ready, before scenes are collected.
type Hook interface {
	Run(ctx context.Context, res *Result) error
}

// HookFunc adapts a bare function to the Hook interface.
type HookFunc func(ctx context.Context, res *Result) error

// Run executes the underlying function.
func (f HookFunc) Run(ctx context.Context, res *Result) error {
	return f(ctx, res)
}

// SceneProvider contributes scenes to the stage registry.
type SceneProvider interface {
	Scenes(ctx context.Context, res *Result) ([]*scene.Scene, error)
}

// SceneProviderFunc adapts a function to the SceneProvider interface.
type SceneProviderFunc func(ctx context.Context, res *Result) ([]*scene.Scene, error)

// Scenes executes the underlying function.
func (f SceneProviderFunc) Scenes(ctx context.Context, res *Result) ([]*scene.Scene, error) {
	return f(ctx, res)
}

// StaticScenes provides a fixed scene list.
func StaticScenes(scenes ...*scene.Scene) SceneProvider {
	return SceneProviderFunc(func(context.Context, *Result) ([]*scene.Scene, error) {
		return scenes, nil
	})
}

// Modules groups optional hooks and scene providers of an application.
type Modules struct {
	Hooks     []Hook
	Providers []SceneProvider
}

// Stage runs the hooks, registers every provided scene and builds a stage
// configured from res. extra options are applied last.
func (m Modules) Stage(ctx context.Context, res *Result, extra ...scene.StageOption) (*scene.Stage, error) {
	if res == nil {
		return nil, fmt.Errorf("bootstrap: nil result")
	}
	for i, h := range m.Hooks {
		if h == nil {
			continue
		}
		if err := h.Run(ctx, res); err != nil {
			return nil, fmt.Errorf("bootstrap: hook %d failed: %w", i, err)
		}
	}
	reg, err := scene.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, p := range m.Providers {
		if p == nil {
			continue
		}
		scenes, err := p.Scenes(ctx, res)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: scene provider failed: %w", err)
		}
		for _, sc := range scenes {
			if err := reg.Register(sc); err != nil {
				return nil, err
			}
		}
	}
	return scene.NewStage(reg, res.StageOptions(extra...)...)
}
