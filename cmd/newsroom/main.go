// Command newsroom はポイント台帳・オフラインメッセージキュー・記事一覧のAPIサーバーと
// 記事キャッシュ更新ワーカーを起動する。
//
//	newsroom [serve|worker|migrate|healthcheck]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/newsroom/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
