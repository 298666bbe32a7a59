// Package installer implements the PIM Installer state machine: install
// and uninstall, dependent unload/reload bracketing, transitive dependency
// installs, and the delete-before-unload uninstall ordering that avoids a
// host auto-rescan race.
package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opskernel/pimhub/internal/logs"
	"github.com/opskernel/pimhub/internal/pim/catalogue"
	"github.com/opskernel/pimhub/internal/pim/download"
	"github.com/opskernel/pimhub/internal/pim/host"
	"github.com/opskernel/pimhub/internal/pim/metrics"
	"github.com/opskernel/pimhub/internal/pim/pimerr"
	"github.com/opskernel/pimhub/internal/pim/resolver"
	"github.com/opskernel/pimhub/internal/pim/task"
)

// HostRuntimeID and InterpreterID are the dependency identifiers that route
// to environment checks instead of the plugin-dependency path.
const (
	HostRuntimeID = "mcdreforged"
	InterpreterID = "python"
)

// Installer wires together the Host, Registry Manager, Resolver, Downloader
// and Task Manager into the install/uninstall state machines.
type Installer struct {
	host       host.Host
	catalogue  *catalogue.Manager
	resolver   *resolver.Resolver
	downloader *download.Downloader
	tasks      *task.Manager
	pip        PipInstaller
	pending    *pendingDeletes

	officialURL string
}

// New builds an Installer. officialURL is used when a caller's install
// request carries no explicit repoUrl.
func New(h host.Host, cat *catalogue.Manager, dl *download.Downloader, tasks *task.Manager, pip PipInstaller, officialURL string) *Installer {
	return &Installer{
		host:        h,
		catalogue:   cat,
		resolver:    resolver.New(h),
		downloader:  dl,
		tasks:       tasks,
		pip:         pip,
		pending:     newPendingDeletes(),
		officialURL: officialURL,
	}
}

// Install starts a background worker installing pluginID at wantVersion
// (empty means latest) from repoURL's catalogue (empty means the official
// catalogue), returning the new task's id immediately.
func (i *Installer) Install(ctx context.Context, pluginID, wantVersion, repoURL string) string {
	t := i.tasks.Create(task.ActionInstall, pluginID, task.Params{Version: wantVersion, RepoURL: repoURL})
	metrics.TaskStarted(string(task.ActionInstall))
	go i.runInstall(t.ID, pluginID, wantVersion, repoURL)
	return t.ID
}

func (i *Installer) runInstall(taskID, pluginID, wantVersion, repoURL string) {
	ctx := context.Background()
	start := time.Now()
	if perr := i.installOne(ctx, taskID, pluginID, wantVersion, repoURL, false); perr != nil {
		i.tasks.Apply(taskID, task.Update{Message: strPtr(perr.Message), Status: statusPtr(task.StatusFailed)})
		metrics.TaskFinished(string(task.ActionInstall), string(task.StatusFailed), time.Since(start).Seconds())
		logs.ForwardTaskEvent(taskID, string(task.ActionInstall), pluginID, string(task.StatusFailed), perr.Message)
		return
	}
	i.tasks.Apply(taskID, task.Update{Status: statusPtr(task.StatusCompleted)})
	metrics.TaskFinished(string(task.ActionInstall), string(task.StatusCompleted), time.Since(start).Seconds())
	logs.ForwardTaskEvent(taskID, string(task.ActionInstall), pluginID, string(task.StatusCompleted), "install completed")
}

// installOne runs the full install algorithm for a single plugin id. It is
// called once for the top-level request (isDependency=false) and
// recursively for each transitive missing dependency (isDependency=true).
// Only the top-level call's outcome decides the owning task's final
// status; the caller of a recursive call is expected to log, not
// propagate, whatever error comes back.
func (i *Installer) installOne(ctx context.Context, taskID, pluginID, wantVersion, repoURL string, isDependency bool) *pimerr.Error {
	url := repoURL
	if url == "" {
		url = i.officialURL
	}

	reg, err := i.catalogue.GetMeta(ctx, url, false)
	if err != nil {
		return pimerr.NewTerminal(pimerr.KindNetworkFailure, pluginID, "无法获取插件仓库数据", err)
	}

	target, ok := reg.Get(pluginID)
	if !ok {
		return pimerr.NewTerminal(pimerr.KindLookupFailure, pluginID, "未找到指定插件", nil)
	}

	release, ok := target.FindRelease(wantVersion)
	if !ok {
		return pimerr.NewTerminal(pimerr.KindLookupFailure, pluginID, "未找到指定版本", nil)
	}
	targetVersion := release.Version().String()

	if meta, loaded, err := i.host.GetPluginMetadata(ctx, pluginID); err == nil && loaded && meta.Version == targetVersion {
		i.logMessage(taskID, fmt.Sprintf("插件 %s 已是版本 %s，无需重新安装", pluginID, targetVersion))
		return nil
	}

	dependents := i.findDependents(ctx, pluginID)
	if len(dependents) > 0 {
		i.logMessage(taskID, fmt.Sprintf("受影响的依赖插件: %s", strings.Join(dependents, ", ")))
	}
	dependentPaths := map[string]string{}
	for _, dep := range dependents {
		if p, ok, _ := i.host.GetPluginFilePath(ctx, dep); ok {
			dependentPaths[dep] = p
		}
	}
	for _, dep := range dependents {
		if err := i.host.UnloadPlugin(ctx, dep); err != nil {
			i.logMessage(taskID, fmt.Sprintf("卸载依赖插件 %s 失败: %v", dep, err))
		}
	}

	fileName := release.FileName
	if fileName == "" {
		fileName = pluginID + ".mcdr"
	}
	targetPath := filepath.Join(i.host.GetPluginDirectory(), fileName)

	if oldPath, ok, _ := i.host.GetPluginFilePath(ctx, pluginID); ok {
		i.unloadAndMarkOld(ctx, taskID, pluginID, oldPath, targetPath)
	}

	if err := i.downloader.Download(ctx, release.DownloadURL, targetPath); err != nil {
		return pimerr.NewTerminal(pimerr.KindNetworkFailure, pluginID, "下载插件失败", err)
	}

	archiveManifest, _, err := readArchive(targetPath)
	if err != nil {
		i.logMessage(taskID, fmt.Sprintf("读取插件包清单失败: %v", err))
		archiveManifest = &resolver.ArchiveManifest{}
	}

	res, err := i.resolver.Resolve(ctx, target, archiveManifest, HostRuntimeID, InterpreterID)
	if err != nil {
		i.logMessage(taskID, fmt.Sprintf("依赖解析失败: %v", err))
		res = resolver.Result{}
	}

	for _, issue := range res.EnvironmentIssues {
		i.logMessage(taskID, fmt.Sprintf("环境不匹配: %s", issue))
	}

	for _, depID := range res.MissingPlugins {
		if depErr := i.installOne(ctx, taskID, depID, "", repoURL, true); depErr != nil {
			i.logMessage(taskID, fmt.Sprintf("未能安装依赖 %s: %s", depID, depErr.Message))
		}
	}

	for _, depID := range sortedKeys(res.OutdatedPlugins) {
		i.logMessage(taskID, fmt.Sprintf("依赖 %s 版本过旧，需要 %s", depID, res.OutdatedPlugins[depID]))
	}

	if len(res.PythonRequirements) > 0 && i.pip == nil {
		i.logMessage(taskID, fmt.Sprintf("⚠ 未配置 Python 包安装器，已跳过 Python 依赖 %v", res.PythonRequirements))
	}
	if len(res.PythonRequirements) > 0 && i.pip != nil {
		if err := i.pip.Install(ctx, res.PythonRequirements); err != nil {
			i.logMessage(taskID, fmt.Sprintf("Python 依赖安装失败: %v", err))
		}
	}

	if err := i.host.LoadPlugin(ctx, targetPath); err != nil {
		if isDependency {
			i.logMessage(taskID, fmt.Sprintf("依赖插件 %s 加载失败: %v", pluginID, err))
		} else {
			return pimerr.NewTerminal(pimerr.KindHostLoadFailure, pluginID, "插件加载失败", err)
		}
	} else {
		for _, p := range i.pending.takeAndClear(pluginID) {
			os.Remove(p)
		}
	}

	for _, dep := range dependents {
		reloadTarget := dep
		if p, ok := dependentPaths[dep]; ok && p != "" {
			reloadTarget = p
		}
		if err := i.host.LoadPlugin(ctx, reloadTarget); err != nil {
			i.logMessage(taskID, fmt.Sprintf("恢复依赖插件 %s 失败: %v", dep, err))
		}
	}

	return nil
}

// unloadAndMarkOld unloads pluginID's currently-loaded file (if any differs
// from the freshly downloaded target path) and deletes it, falling back to
// PendingDeletion if the OS still has it locked.
func (i *Installer) unloadAndMarkOld(ctx context.Context, taskID, pluginID, oldPath, newTargetPath string) {
	if err := i.host.UnloadPlugin(ctx, pluginID); err != nil {
		i.logMessage(taskID, fmt.Sprintf("卸载旧版本 %s 失败: %v", pluginID, err))
	}
	if oldPath == "" || oldPath == newTargetPath {
		return
	}
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		i.pending.add(pluginID, oldPath)
		i.logMessage(taskID, fmt.Sprintf("旧文件 %s 暂时无法删除，将稍后重试", oldPath))
	}
}

// findDependents enumerates every loaded plugin whose dependency list
// references pluginID, case-insensitively.
func (i *Installer) findDependents(ctx context.Context, pluginID string) []string {
	ids, err := i.host.ListLoadedPluginIDs(ctx)
	if err != nil {
		return nil
	}
	var out []string
	for _, id := range ids {
		if strings.EqualFold(id, pluginID) {
			continue
		}
		meta, ok, err := i.host.GetPluginMetadata(ctx, id)
		if err != nil || !ok {
			continue
		}
		for depID := range meta.Dependencies {
			if strings.EqualFold(depID, pluginID) {
				out = append(out, id)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (i *Installer) logMessage(taskID, msg string) {
	i.tasks.Apply(taskID, task.Update{Message: strPtr(msg)})
}

func strPtr(s string) *string          { return &s }
func statusPtr(s task.Status) *task.Status { return &s }

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
