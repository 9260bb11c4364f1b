// Command syncbook はユーザーとメモをリモートサービスと同期するAPIサーバー兼ワーカー。
//
// 使い方:
//
//	syncbook [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/syncbook/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "syncbook: %v\n", err)
		os.Exit(1)
	}
}
