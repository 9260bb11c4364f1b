package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。SQLiteでは同じプロセスで同期ワークも実行する。
	CommandServe Command = "serve"
	// CommandWorker は同期ワークのスケジューラのみを実行するモード。
	CommandWorker Command = "worker"
	// CommandMigrate はローカルストアのスキーマを作成・更新して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandHelp はサブコマンドの一覧を表示する。
	CommandHelp Command = "help"
)

// commandUsage はサブコマンドと説明。表示順を保つためスライスで持つ。
var commandUsage = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "APIサーバーを起動する（デフォルト）"},
	{CommandWorker, "定期同期ワークを実行する"},
	{CommandMigrate, "データベースマイグレーションを実行する"},
	{CommandHealthcheck, "起動中のサーバーの/healthを確認する"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	switch arg := strings.TrimLeft(args[0], "-"); arg {
	case "h":
		return CommandHelp
	default:
		for _, u := range commandUsage {
			if string(u.cmd) == arg {
				return u.cmd
			}
		}
	}
	return CommandServe
}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	var b strings.Builder
	b.WriteString("usage: syncbook [command]\n\ncommands:\n")
	for _, u := range commandUsage {
		fmt.Fprintf(&b, "  %-12s %s\n", u.cmd, u.desc)
	}
	return b.String()
}
