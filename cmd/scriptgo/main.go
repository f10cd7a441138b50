// Command scriptgo はScriptGoのAPIサーバー・ワーカー・マイグレーションを起動する。
//
//	scriptgo serve        APIサーバー（デフォルト）
//	scriptgo worker       予約配信・セッション削除ジョブ
//	scriptgo migrate      マイグレーションのみ実行
//	scriptgo healthcheck  コンテナのヘルスチェック
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/scriptgo/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "scriptgo: %v\n", err)
		os.Exit(1)
	}
}
