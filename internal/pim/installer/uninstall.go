package installer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opskernel/pimhub/internal/logs"
	"github.com/opskernel/pimhub/internal/pim/metrics"
	"github.com/opskernel/pimhub/internal/pim/task"
)

// Uninstall starts a background worker uninstalling pluginID (and any
// loaded plugin that depends on it, cascading), returning the new task's
// id immediately.
func (i *Installer) Uninstall(ctx context.Context, pluginID string) string {
	t := i.tasks.Create(task.ActionUninstall, pluginID, task.Params{})
	metrics.TaskStarted(string(task.ActionUninstall))
	go i.runUninstall(t.ID, pluginID)
	return t.ID
}

func (i *Installer) runUninstall(taskID, pluginID string) {
	ctx := context.Background()
	start := time.Now()
	i.uninstallOne(ctx, taskID, pluginID, false)
	i.tasks.Apply(taskID, task.Update{Status: statusPtr(task.StatusCompleted)})
	metrics.TaskFinished(string(task.ActionUninstall), string(task.StatusCompleted), time.Since(start).Seconds())
	logs.ForwardTaskEvent(taskID, string(task.ActionUninstall), pluginID, string(task.StatusCompleted), "uninstall completed")
}

// uninstallOne runs the uninstall algorithm for one plugin: cascade to
// dependents first, then delete every file the detector
// attributes to pluginID *before* asking the host to unload it, which
// avoids the host's post-unload directory scan re-discovering the plugin.
func (i *Installer) uninstallOne(ctx context.Context, taskID, pluginID string, isDependency bool) {
	for _, dep := range i.findDependents(ctx, pluginID) {
		i.logMessage(taskID, fmt.Sprintf("级联卸载依赖插件 %s", dep))
		i.uninstallOne(ctx, taskID, dep, true)
	}

	var paths []string
	if p, ok, _ := i.host.GetPluginFilePath(ctx, pluginID); ok && p != "" {
		paths = append(paths, p)
	}
	if unloadedFiles, err := i.host.ListUnloadedPluginFiles(ctx); err == nil {
		for _, f := range unloadedFiles {
			if strings.EqualFold(f.PluginID, pluginID) {
				paths = append(paths, f.Path)
			}
		}
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			i.pending.add(pluginID, p)
			i.logMessage(taskID, fmt.Sprintf("文件 %s 删除失败，已加入延迟删除队列: %v", p, err))
		}
	}

	if _, loaded, _ := i.host.GetPluginMetadata(ctx, pluginID); loaded {
		if err := i.host.UnloadPlugin(ctx, pluginID); err != nil {
			i.logMessage(taskID, fmt.Sprintf("卸载插件 %s 失败: %v", pluginID, err))
		}
	}
}
