package main

import (
	"context"
	"fmt"
	"os"

	"otchat/config"
	"otchat/mcp"
	"otchat/render"
	"otchat/storage"
	"otchat/tools"
)

// app holds what every command needs: settings, the chat store and, for
// chatting, the tool registry with MCP servers.
type app struct {
	cfg     *config.Config
	store   *storage.ChatStore
	tools   *tools.Registry
	servers *mcp.Servers
}

func loadConfig() (*config.Config, error) {
	path := settingsPath
	if path == "" {
		path = config.GetSettingsFilePath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}
	config.InitDebugLog(cfg.DataDir())
	return cfg, nil
}

// openApp loads settings and opens the store. withTools also registers the
// built-in tools and starts the configured MCP servers.
func openApp(ctx context.Context, withTools bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend, err := storage.Open(cfg.Storage, cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a := &app{cfg: cfg, store: storage.NewChatStore(backend)}

	if !withTools {
		return a, nil
	}

	a.tools = tools.NewRegistry()
	if err := tools.RegisterBuiltins(a.tools); err != nil {
		a.Close()
		return nil, err
	}

	a.servers = mcp.NewServers()
	for _, err := range a.servers.StartAll(ctx, cfg.MCPServers) {
		fmt.Fprintln(os.Stderr, render.Warning(err.Error()))
	}
	if err := a.servers.RegisterTools(a.tools); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.servers != nil {
		a.servers.Shutdown(context.Background())
	}
	if err := a.store.Close(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Storage] Close failed: %v", err)
	}
}

func errorText(err error) string {
	return render.Error(err.Error())
}
