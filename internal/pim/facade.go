// Package pim wires the Registry Manager, Resolver, Downloader, Installer
// and Task Manager into the single Facade the HTTP bridge (and any future
// in-process caller, such as an in-game command handler) depends on.
package pim

import (
	"context"
	"fmt"

	"github.com/opskernel/pimhub/internal/config"
	"github.com/opskernel/pimhub/internal/pim/catalogue"
	"github.com/opskernel/pimhub/internal/pim/download"
	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/installer"
	"github.com/opskernel/pimhub/internal/pim/model"
	"github.com/opskernel/pimhub/internal/pim/task"
)

// Facade is a thin aggregator: it owns the sub-component instances and the
// self-id guardrail, and holds no plugin state of its own beyond that.
type Facade struct {
	host      host.Host
	catalogue *catalogue.Manager
	installer *installer.Installer
	tasks     *task.Manager

	selfID      string
	officialURL string
}

// New builds a Facade from a Host and the process Config. pip may be nil if
// the host has no Python interpreter to drive (pip installs are then
// skipped, logged as a warning by the installer).
func New(h host.Host, cfg *config.Config, pip installer.PipInstaller) *Facade {
	cat := catalogue.New(cfg.CacheDir, cfg.CatalogueURL)
	dl := download.New(cfg.DownloadTimeout)
	tasks := task.NewManager(cfg.TaskRetention)
	inst := installer.New(h, cat, dl, tasks, pip, cfg.CatalogueURL)

	return &Facade{
		host:        h,
		catalogue:   cat,
		installer:   inst,
		tasks:       tasks,
		selfID:      cfg.SelfID,
		officialURL: cfg.CatalogueURL,
	}
}

// Install starts an install task for pluginID, rejecting the designated
// self id guardrail (the WebUI must never uninstall or reinstall itself
// out from under the request handling it).
func (f *Facade) Install(ctx context.Context, pluginID, version, repoURL string) (string, error) {
	if err := f.rejectSelf(pluginID); err != nil {
		return "", err
	}
	return f.installer.Install(ctx, pluginID, version, repoURL), nil
}

// Uninstall starts an uninstall task for pluginID, subject to the same
// self-id guardrail as Install.
func (f *Facade) Uninstall(ctx context.Context, pluginID string) (string, error) {
	if err := f.rejectSelf(pluginID); err != nil {
		return "", err
	}
	return f.installer.Uninstall(ctx, pluginID), nil
}

func (f *Facade) rejectSelf(pluginID string) error {
	if f.selfID != "" && pluginID == f.selfID {
		return fmt.Errorf("pim: refusing to install/uninstall self id %q", pluginID)
	}
	return nil
}

// GetCataMeta returns the catalogue for repoURL (the official catalogue if
// repoURL is empty), consulting cache/TTL/backoff as usual.
func (f *Facade) GetCataMeta(ctx context.Context, repoURL string, ignoreTTL bool) (model.MetaRegistry, error) {
	url := repoURL
	if url == "" {
		url = f.officialURL
	}
	return f.catalogue.GetMeta(ctx, url, ignoreTTL)
}

// ListPlugins returns every plugin the official catalogue knows about (a
// read-only view over GetCataMeta's Plugins).
func (f *Facade) ListPlugins(ctx context.Context) ([]*model.PluginData, error) {
	reg, err := f.GetCataMeta(ctx, "", false)
	if err != nil {
		return nil, err
	}
	return reg.List(), nil
}

// GetTask returns a snapshot of one task.
func (f *Facade) GetTask(id string) (*task.Task, bool) {
	return f.tasks.Get(id)
}

// GetAllTasks returns a snapshot of every tracked task.
func (f *Facade) GetAllTasks() map[string]*task.Task {
	return f.tasks.GetAll()
}

// Subscribe returns a channel fed with every future progress message
// appended to taskID, letting a caller outside this module (such as an
// in-game command handler) relay messages as they arrive instead of
// polling GetTask in a loop. Additive to, not a replacement for, GetTask.
func (f *Facade) Subscribe(taskID string) <-chan string {
	return f.tasks.Subscribe(taskID)
}
